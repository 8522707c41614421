package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"mangrovewatch/models"
)

const userColumns = `id, name, email, password_hash, role, organization, points,
	badges, is_verified, is_admin, created_at, updated_at`

func (d *Database) CreateUser(ctx context.Context, user *models.User) error {
	badges, err := json.Marshal(user.Badges)
	if err != nil {
		return fmt.Errorf("failed to marshal badges: %w", err)
	}

	result, err := d.db.ExecContext(ctx, `INSERT INTO users
		(id, name, email, password_hash, role, organization, points, badges,
		 is_verified, is_admin, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.PasswordHash, string(user.Role),
		user.Organization, user.Points, badges, user.IsVerified, user.IsAdmin,
		user.CreatedAt, user.UpdatedAt)
	var merr *mysql.MySQLError
	if errors.As(err, &merr) && merr.Number == 1062 {
		return ErrDuplicateEmail
	}
	return validateResult(result, err, true)
}

func (d *Database) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (d *Database) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (d *Database) UpdateUser(ctx context.Context, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()
	result, err := d.db.ExecContext(ctx, `UPDATE users
		SET name = ?, organization = ?, is_verified = ?, updated_at = ?
		WHERE id = ?`,
		user.Name, user.Organization, user.IsVerified, user.UpdatedAt, user.ID)
	return validateResult(result, err, false)
}

func (d *Database) AddPoints(ctx context.Context, userID string, points int) error {
	if points < 0 {
		return fmt.Errorf("points must not be negative, got %d", points)
	}
	result, err := d.db.ExecContext(ctx,
		`UPDATE users SET points = points + ?, updated_at = ? WHERE id = ?`,
		points, time.Now().UTC(), userID)
	return validateResult(result, err, false)
}

func (d *Database) UserStats(ctx context.Context, userID string) (*models.UserStats, error) {
	var total, verified int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM incidents WHERE reporter_id = ?`, userID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	err = d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM incidents WHERE reporter_id = ? AND status = 'verified'`, userID).Scan(&verified)
	if err != nil {
		return nil, fmt.Errorf("failed to count verified reports: %w", err)
	}

	return &models.UserStats{
		TotalReports:    total,
		VerifiedReports: verified,
		Badges:          models.BadgesFor(total, verified),
	}, nil
}

func (d *Database) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT u.name, u.organization, u.points,
			COUNT(i.id) AS total_reports,
			COALESCE(SUM(i.status = 'verified'), 0) AS verified_reports
		FROM users u
		LEFT JOIN incidents i ON i.reporter_id = u.id
		GROUP BY u.id, u.name, u.organization, u.points
		ORDER BY u.points DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []models.LeaderboardEntry{}
	rank := 1
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.Name, &e.Organization, &e.Points, &e.TotalReports, &e.VerifiedReports); err != nil {
			return nil, err
		}
		e.Rank = rank
		rank++
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (d *Database) DashboardAnalytics(ctx context.Context) (*models.DashboardAnalytics, error) {
	a := &models.DashboardAnalytics{}

	err := d.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(status = 'pending'), 0),
		COALESCE(SUM(status = 'verified'), 0),
		COALESCE(SUM(status = 'resolved'), 0)
		FROM incidents`).Scan(
		&a.TotalIncidents, &a.PendingIncidents, &a.VerifiedIncidents, &a.ResolvedIncidents)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate incidents: %w", err)
	}

	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&a.TotalUsers); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM incidents GROUP BY type ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to group incidents by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, err
		}
		a.IncidentsByType = append(a.IncidentsByType, models.TypeCount{
			Type:  models.ParseIncidentType(typ),
			Count: count,
		})
	}

	if a.TotalIncidents > 0 {
		a.VerificationRate = float64(a.VerifiedIncidents) / float64(a.TotalIncidents) * 100
	}
	return a, rows.Err()
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u      models.User
		role   string
		badges sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role,
		&u.Organization, &u.Points, &badges, &u.IsVerified, &u.IsAdmin,
		&u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u.Role = models.ParseRole(role)
	u.Badges = []string{}
	if badges.Valid && badges.String != "" {
		if err := json.Unmarshal([]byte(badges.String), &u.Badges); err != nil {
			return nil, fmt.Errorf("failed to unmarshal badges for user %s: %w", u.ID, err)
		}
	}
	return &u, nil
}
