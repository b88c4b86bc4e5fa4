package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema holds the tables owned by the ticketing engine.  The users table
// belongs to the identity service and is only created when missing so a
// fresh development database can start.  Statements run one at a time
// because the driver does not enable multiStatements.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email       VARCHAR(255) NOT NULL UNIQUE,
		role        VARCHAR(16)  NOT NULL DEFAULT 'CUSTOMER',
		is_active   TINYINT(1)   NOT NULL DEFAULT 1,
		created_at  DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS ticket_tiers (
		id               BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		event_id         BIGINT UNSIGNED NOT NULL,
		name             VARCHAR(120)  NOT NULL,
		price            DECIMAL(12,2) NOT NULL,
		remaining_stock  INT           NOT NULL,
		initial_stock    INT           NOT NULL,
		max_per_order    INT           NULL,
		status           VARCHAR(16)   NOT NULL DEFAULT 'AVAILABLE',
		event_name       VARCHAR(255)  NULL,
		event_date       VARCHAR(64)   NULL,
		venue_name       VARCHAR(255)  NULL,
		event_image_url  VARCHAR(512)  NULL,
		CONSTRAINT chk_tier_stock CHECK (remaining_stock >= 0 AND remaining_stock <= initial_stock),
		KEY idx_tiers_event (event_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS orders (
		id               BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id          BIGINT UNSIGNED NOT NULL,
		ticket_tier_id   BIGINT UNSIGNED NOT NULL,
		quantity         INT           NOT NULL,
		unit_price       DECIMAL(12,2) NOT NULL,
		total_price      DECIMAL(12,2) NOT NULL,
		subtotal         DECIMAL(12,2) NOT NULL,
		discount_amount  DECIMAL(12,2) NOT NULL DEFAULT 0,
		promo_code       VARCHAR(64)   NULL,
		status           VARCHAR(16)   NOT NULL,
		check_in_code    VARCHAR(32)   NOT NULL,
		created_at       DATETIME(3)   NOT NULL,
		expires_at       DATETIME(3)   NOT NULL,
		used_at          DATETIME(3)   NULL,
		event_id         BIGINT UNSIGNED NULL,
		event_name       VARCHAR(255)  NULL,
		event_date       VARCHAR(64)   NULL,
		venue_name       VARCHAR(255)  NULL,
		event_image_url  VARCHAR(512)  NULL,
		tier_name        VARCHAR(120)  NULL,
		UNIQUE KEY uq_orders_check_in_code (check_in_code),
		KEY idx_orders_user_created (user_id, created_at),
		KEY idx_orders_status_expires (status, expires_at),
		CONSTRAINT fk_orders_tier FOREIGN KEY (ticket_tier_id) REFERENCES ticket_tiers(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS payments (
		id           BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		order_id     BIGINT UNSIGNED NOT NULL,
		method       VARCHAR(32)   NOT NULL,
		amount       DECIMAL(12,2) NOT NULL,
		status       VARCHAR(16)   NOT NULL,
		gateway_ref  VARCHAR(128)  NULL,
		payment_url  VARCHAR(512)  NULL,
		notes        VARCHAR(255)  NULL,
		expires_at   DATETIME(3)   NOT NULL,
		paid_at      DATETIME(3)   NULL,
		created_at   DATETIME(3)   NOT NULL,
		updated_at   DATETIME(3)   NOT NULL,
		UNIQUE KEY uq_payments_order (order_id),
		CONSTRAINT fk_payments_order FOREIGN KEY (order_id) REFERENCES orders(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates any missing table.  It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
