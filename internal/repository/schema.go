package repository

import (
	"context"
	"fmt"
)

// 建表语句，时间列需要DSN带parseTime=true
var schema = []string{
	`CREATE TABLE IF NOT EXISTS polls (
		id                 VARCHAR(36)  NOT NULL PRIMARY KEY,
		guild_id           VARCHAR(32)  NOT NULL,
		channel_id         VARCHAR(32)  NOT NULL,
		message_id         VARCHAR(32)  NOT NULL,
		question           TEXT         NOT NULL,
		options            JSON         NOT NULL,
		randomizer_options JSON         NOT NULL,
		vote_mode          VARCHAR(16)  NOT NULL,
		author             JSON         NOT NULL,
		start_date         DATETIME(3)  NOT NULL,
		end_date           DATETIME(3)  NOT NULL,
		duration           VARCHAR(8)   NOT NULL,
		recurrence         VARCHAR(8)   NOT NULL DEFAULT 'none',
		next_run           DATETIME(3)  NULL,
		KEY idx_polls_end_date (end_date),
		KEY idx_polls_message_id (message_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS poll_results (
		id         BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
		poll_id    VARCHAR(36)  NOT NULL,
		message_id VARCHAR(32)  NOT NULL,
		question   TEXT         NOT NULL,
		tallies    JSON         NOT NULL,
		closed_at  DATETIME(3)  NOT NULL,
		UNIQUE KEY uk_poll_results_message (poll_id, message_id),
		KEY idx_poll_results_poll (poll_id, closed_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// CreateSchema 创建缺失的表
func (r *MySQLRepository) CreateSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.masterDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("创建表失败: %w", err)
		}
	}
	return nil
}
