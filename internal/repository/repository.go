package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/25x8/playvested/internal/models"
	_ "github.com/jackc/pgx/v4/stdlib"
)

var ErrPlayerNotFound = errors.New("player not found")

type RecordFilter struct {
	DevID    string
	GameID   string
	PlayerID string
	Since    time.Time
}

type Repository interface {
	CreatePlayer(ctx context.Context, player models.Player) error
	GetPlayer(ctx context.Context, id string) (*models.Player, error)

	CreateAccount(ctx context.Context, account models.Account) error
	GetAccount(ctx context.Context, username string) (*models.Account, error)
	LinkAccount(ctx context.Context, username, playerID string) error
	IsLinked(ctx context.Context, playerID string) (bool, error)

	CreateRecord(ctx context.Context, record models.Record) (int64, error)
	SumRecords(ctx context.Context, filter RecordFilter) (float64, error)

	InitDB(databaseURI string) error
	Close() error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

func (r *PostgresRepository) InitDB(databaseURI string) error {
	db, err := sql.Open("pgx", databaseURI)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}

	r.db = db

	err = r.createTables()
	if err != nil {
		db.Close()
		return err
	}

	return nil
}

func (r *PostgresRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *PostgresRepository) createTables() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS players (
			id VARCHAR(64) PRIMARY KEY,
			game_id VARCHAR(255) NOT NULL,
			charity_name VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			username VARCHAR(255) PRIMARY KEY,
			password_hash VARCHAR(255) NOT NULL,
			player_id VARCHAR(64) REFERENCES players(id),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id SERIAL PRIMARY KEY,
			dev_id VARCHAR(255) NOT NULL DEFAULT '',
			game_id VARCHAR(255) NOT NULL DEFAULT '',
			player_id VARCHAR(64) REFERENCES players(id),
			amount NUMERIC(14, 2) NOT NULL,
			recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	return nil
}

func (r *PostgresRepository) CreatePlayer(ctx context.Context, player models.Player) error {
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO players (id, game_id, charity_name) VALUES ($1, $2, $3)",
		player.ID, player.GameID, player.CharityName,
	)
	return err
}

func (r *PostgresRepository) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	player := &models.Player{}
	err := r.db.QueryRowContext(
		ctx,
		"SELECT id, game_id, charity_name, created_at FROM players WHERE id = $1",
		id,
	).Scan(&player.ID, &player.GameID, &player.CharityName, &player.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return player, nil
}

func (r *PostgresRepository) CreateAccount(ctx context.Context, account models.Account) error {
	var playerID sql.NullString
	if account.PlayerID != "" {
		playerID = sql.NullString{String: account.PlayerID, Valid: true}
	}
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO accounts (username, password_hash, player_id) VALUES ($1, $2, $3)",
		account.Username, account.PasswordHash, playerID,
	)
	return err
}

func (r *PostgresRepository) GetAccount(ctx context.Context, username string) (*models.Account, error) {
	account := &models.Account{}
	var playerID sql.NullString
	err := r.db.QueryRowContext(
		ctx,
		"SELECT username, password_hash, player_id, created_at FROM accounts WHERE username = $1",
		username,
	).Scan(&account.Username, &account.PasswordHash, &playerID, &account.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	account.PlayerID = playerID.String
	return account, nil
}

func (r *PostgresRepository) LinkAccount(ctx context.Context, username, playerID string) error {
	res, err := r.db.ExecContext(
		ctx,
		"UPDATE accounts SET player_id = $1 WHERE username = $2",
		playerID, username,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("account not found")
	}
	return nil
}

func (r *PostgresRepository) IsLinked(ctx context.Context, playerID string) (bool, error) {
	var linked bool
	err := r.db.QueryRowContext(
		ctx,
		"SELECT EXISTS (SELECT 1 FROM accounts WHERE player_id = $1)",
		playerID,
	).Scan(&linked)
	return linked, err
}

func (r *PostgresRepository) CreateRecord(ctx context.Context, record models.Record) (int64, error) {
	player, err := r.GetPlayer(ctx, record.PlayerID)
	if err != nil {
		return 0, err
	}
	if player == nil {
		return 0, ErrPlayerNotFound
	}

	var id int64
	err = r.db.QueryRowContext(
		ctx,
		"INSERT INTO records (dev_id, game_id, player_id, amount) VALUES ($1, $2, $3, $4) RETURNING id",
		record.DevID, record.GameID, record.PlayerID, record.Amount,
	).Scan(&id)

	if err != nil {
		return 0, err
	}

	return id, nil
}

func (r *PostgresRepository) SumRecords(ctx context.Context, filter RecordFilter) (float64, error) {
	query, args := sumQuery(filter)
	var total float64
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func sumQuery(filter RecordFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, column+" $"+strconv.Itoa(len(args)))
	}

	if filter.DevID != "" {
		add("dev_id =", filter.DevID)
	}
	if filter.GameID != "" {
		add("game_id =", filter.GameID)
	}
	if filter.PlayerID != "" {
		add("player_id =", filter.PlayerID)
	}
	if !filter.Since.IsZero() {
		add("recorded_at >=", filter.Since)
	}

	query := "SELECT COALESCE(SUM(amount), 0) FROM records"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query, args
}
