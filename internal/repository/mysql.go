package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/c0du/discord-bot-pollie/config"
	"github.com/c0du/discord-bot-pollie/internal/model"
)

// ErrPollNotFound 更新时记录已不存在
var ErrPollNotFound = errors.New("投票记录不存在")

const pollColumns = "id, guild_id, channel_id, message_id, question, options, randomizer_options, vote_mode, author, start_date, end_date, duration, recurrence, next_run"

type MySQLRepository struct {
	masterDB *sql.DB
	slaveDB  *sql.DB
	logger   *zap.Logger
}

func NewMySQLRepository(cfg config.MySQLConfig, logger *zap.Logger) (*MySQLRepository, error) {
	masterDB, err := openDB(cfg.Master, cfg)
	if err != nil {
		return nil, fmt.Errorf("连接主数据库失败: %w", err)
	}

	if err = masterDB.Ping(); err != nil {
		masterDB.Close()
		return nil, fmt.Errorf("主数据库连接测试失败: %w", err)
	}

	slaveDB := masterDB
	if cfg.Slave != "" && cfg.Slave != cfg.Master {
		slaveDB, err = openDB(cfg.Slave, cfg)
		if err != nil {
			masterDB.Close()
			return nil, fmt.Errorf("连接从数据库失败: %w", err)
		}
		if err = slaveDB.Ping(); err != nil {
			logger.Warn("从数据库连接测试失败，将使用主数据库代替", zap.Error(err))
			slaveDB.Close()
			slaveDB = masterDB
		}
	}

	return NewMySQLRepositoryWithDB(masterDB, slaveDB, logger), nil
}

// NewMySQLRepositoryWithDB 使用已打开的连接，slave为nil时读写都走主库
func NewMySQLRepositoryWithDB(master, slave *sql.DB, logger *zap.Logger) *MySQLRepository {
	if slave == nil {
		slave = master
	}
	return &MySQLRepository{masterDB: master, slaveDB: slave, logger: logger.Named("mysql")}
}

func openDB(dsn string, cfg config.MySQLConfig) (*sql.DB, error) {
	dsn, err := foundRowsDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// foundRowsDSN 强制开启clientFoundRows，Update按匹配行数判断记录是否存在
func foundRowsDSN(dsn string) (string, error) {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("解析数据库DSN失败: %w", err)
	}
	parsed.ClientFoundRows = true
	return parsed.FormatDSN(), nil
}

// Create 保存新的投票记录，ID为空时生成UUID
func (r *MySQLRepository) Create(ctx context.Context, poll *model.Poll) error {
	if poll.ID == "" {
		poll.ID = uuid.NewString()
	}

	args, err := pollArgs(poll)
	if err != nil {
		return err
	}

	query := "INSERT INTO polls (" + pollColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	if _, err := r.masterDB.ExecContext(ctx, query, append([]interface{}{poll.ID}, args...)...); err != nil {
		return fmt.Errorf("保存投票记录失败: %w", err)
	}
	return nil
}

// FindByID 按ID查询，不存在时返回nil, nil
//
// 读主库：关闭流程依赖刚写入的状态，不能容忍从库延迟
func (r *MySQLRepository) FindByID(ctx context.Context, id string) (*model.Poll, error) {
	row := r.masterDB.QueryRowContext(ctx, "SELECT "+pollColumns+" FROM polls WHERE id = ?", id)

	poll, err := scanPoll(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询投票记录失败: %w", err)
	}
	return poll, nil
}

// FindAllWithEndDateAfter 查询结束时间晚于t的记录
func (r *MySQLRepository) FindAllWithEndDateAfter(ctx context.Context, t time.Time) ([]*model.Poll, error) {
	return r.queryPolls(ctx, "SELECT "+pollColumns+" FROM polls WHERE end_date > ? ORDER BY end_date", t)
}

// FindAllWithEndDateBefore 查询结束时间早于t的记录
func (r *MySQLRepository) FindAllWithEndDateBefore(ctx context.Context, t time.Time) ([]*model.Poll, error) {
	return r.queryPolls(ctx, "SELECT "+pollColumns+" FROM polls WHERE end_date < ? ORDER BY end_date", t)
}

func (r *MySQLRepository) queryPolls(ctx context.Context, query string, args ...interface{}) ([]*model.Poll, error) {
	rows, err := r.slaveDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询投票记录失败: %w", err)
	}
	defer rows.Close()

	var polls []*model.Poll
	for rows.Next() {
		poll, err := scanPoll(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描投票记录失败: %w", err)
		}
		polls = append(polls, poll)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代投票记录失败: %w", err)
	}
	return polls, nil
}

// Update 覆盖除ID外的所有字段
func (r *MySQLRepository) Update(ctx context.Context, poll *model.Poll) error {
	args, err := pollArgs(poll)
	if err != nil {
		return err
	}

	query := `UPDATE polls SET guild_id = ?, channel_id = ?, message_id = ?, question = ?,
			 options = ?, randomizer_options = ?, vote_mode = ?, author = ?,
			 start_date = ?, end_date = ?, duration = ?, recurrence = ?, next_run = ?
			 WHERE id = ?`

	result, err := r.masterDB.ExecContext(ctx, query, append(args, poll.ID)...)
	if err != nil {
		return fmt.Errorf("更新投票记录失败: %w", err)
	}

	// openDB开启了clientFoundRows，内容未变化时也返回匹配行数
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("获取更新结果失败: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("更新投票 %s: %w", poll.ID, ErrPollNotFound)
	}
	return nil
}

// DeleteByID 删除记录，不存在时不报错
func (r *MySQLRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.masterDB.ExecContext(ctx, "DELETE FROM polls WHERE id = ?", id); err != nil {
		return fmt.Errorf("删除投票记录失败: %w", err)
	}
	return nil
}

// SaveResult 保存一轮投票结果，同一条消息重复写入时覆盖（消费可能重复）
func (r *MySQLRepository) SaveResult(ctx context.Context, result *model.PollResult) error {
	tallies, err := json.Marshal(result.Tallies)
	if err != nil {
		return fmt.Errorf("序列化计票结果失败: %w", err)
	}

	query := `INSERT INTO poll_results (poll_id, message_id, question, tallies, closed_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON DUPLICATE KEY UPDATE
			 question = VALUES(question),
			 tallies = VALUES(tallies),
			 closed_at = VALUES(closed_at)`

	res, err := r.masterDB.ExecContext(ctx, query,
		result.PollID,
		result.MessageID,
		result.Question,
		tallies,
		result.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("保存投票结果失败: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		result.ID = id
	}
	return nil
}

// ListResults 按关闭时间倒序列出某个投票的历史结果
func (r *MySQLRepository) ListResults(ctx context.Context, pollID string, limit int) ([]*model.PollResult, error) {
	query := `SELECT id, poll_id, message_id, question, tallies, closed_at
			 FROM poll_results
			 WHERE poll_id = ?
			 ORDER BY closed_at DESC
			 LIMIT ?`

	rows, err := r.slaveDB.QueryContext(ctx, query, pollID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询投票结果失败: %w", err)
	}
	defer rows.Close()

	var results []*model.PollResult
	for rows.Next() {
		var (
			result  model.PollResult
			tallies []byte
		)
		if err := rows.Scan(&result.ID, &result.PollID, &result.MessageID, &result.Question, &tallies, &result.ClosedAt); err != nil {
			return nil, fmt.Errorf("扫描投票结果失败: %w", err)
		}
		if err := json.Unmarshal(tallies, &result.Tallies); err != nil {
			return nil, fmt.Errorf("解析计票结果失败: %w", err)
		}
		results = append(results, &result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("迭代投票结果失败: %w", err)
	}
	return results, nil
}

// Close 关闭数据库连接
func (r *MySQLRepository) Close() {
	if r.masterDB != nil {
		r.masterDB.Close()
	}
	if r.slaveDB != nil && r.slaveDB != r.masterDB {
		r.slaveDB.Close()
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPoll(row rowScanner) (*model.Poll, error) {
	var (
		poll                        model.Poll
		options, randomizer, author []byte
		voteMode                    string
		nextRun                     sql.NullTime
	)

	err := row.Scan(
		&poll.ID,
		&poll.GuildID,
		&poll.ChannelID,
		&poll.MessageID,
		&poll.Question,
		&options,
		&randomizer,
		&voteMode,
		&author,
		&poll.StartDate,
		&poll.EndDate,
		&poll.Duration,
		&poll.Recurrence,
		&nextRun,
	)
	if err != nil {
		return nil, err
	}

	poll.VoteMode = model.VoteMode(voteMode)
	if err := json.Unmarshal(options, &poll.Options); err != nil {
		return nil, fmt.Errorf("解析选项失败: %w", err)
	}
	if err := json.Unmarshal(randomizer, &poll.RandomizerOptions); err != nil {
		return nil, fmt.Errorf("解析候选选项失败: %w", err)
	}
	if err := json.Unmarshal(author, &poll.Author); err != nil {
		return nil, fmt.Errorf("解析作者失败: %w", err)
	}
	if nextRun.Valid {
		t := nextRun.Time
		poll.NextRun = &t
	}
	return &poll, nil
}

// pollArgs 按pollColumns顺序（不含id）生成参数
func pollArgs(poll *model.Poll) ([]interface{}, error) {
	options, err := json.Marshal(poll.Options)
	if err != nil {
		return nil, fmt.Errorf("序列化选项失败: %w", err)
	}
	randomizer := poll.RandomizerOptions
	if randomizer == nil {
		randomizer = []string{}
	}
	randomizerJSON, err := json.Marshal(randomizer)
	if err != nil {
		return nil, fmt.Errorf("序列化候选选项失败: %w", err)
	}
	author, err := json.Marshal(poll.Author)
	if err != nil {
		return nil, fmt.Errorf("序列化作者失败: %w", err)
	}

	var nextRun interface{}
	if poll.NextRun != nil {
		nextRun = *poll.NextRun
	}

	return []interface{}{
		poll.GuildID,
		poll.ChannelID,
		poll.MessageID,
		poll.Question,
		options,
		randomizerJSON,
		string(poll.VoteMode),
		author,
		poll.StartDate,
		poll.EndDate,
		poll.Duration,
		poll.Recurrence,
		nextRun,
	}, nil
}
