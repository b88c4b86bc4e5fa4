package model

// Role names carried in the JWT "role" claim.  Accounts live in the
// `users` table owned by the identity service; the ticketing engine only
// checks that the buyer of an order exists and is active (users.is_active).
const (
    RoleCustomer = "CUSTOMER"
    RoleAdmin    = "ADMIN"
)
