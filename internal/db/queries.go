package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tonytopp/shelly-home/internal/models"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

const deviceColumns = "id, name, type, ip_address, mqtt_topic, status, power, is_on, last_seen, created_at"

func scanDevice(row pgx.Row) (*models.Device, error) {
	var d models.Device
	err := row.Scan(&d.ID, &d.Name, &d.Type, &d.IPAddress, &d.MQTTTopic, &d.Status, &d.Power, &d.IsOn, &d.LastSeen, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetAllDevices fetches every registered device
func (d *DB) GetAllDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := d.pool.Query(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *dev)
	}
	return devices, rows.Err()
}

// GetDeviceByID fetches a device
func (d *DB) GetDeviceByID(ctx context.Context, id int64) (*models.Device, error) {
	return scanDevice(d.pool.QueryRow(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = $1", id))
}

// InsertDevice creates a device and returns it with its assigned id
func (d *DB) InsertDevice(ctx context.Context, dev *models.Device) (*models.Device, error) {
	return scanDevice(d.pool.QueryRow(ctx,
		`INSERT INTO devices (name, type, ip_address, mqtt_topic, status, power, is_on)
		 VALUES ($1, $2, $3, $4, 'offline', '0', false)
		 RETURNING `+deviceColumns,
		dev.Name, dev.Type, dev.IPAddress, dev.MQTTTopic))
}

// UpdateDeviceInfo updates user-editable device fields
func (d *DB) UpdateDeviceInfo(ctx context.Context, dev *models.Device) error {
	tag, err := d.pool.Exec(ctx,
		"UPDATE devices SET name=$1, type=$2, ip_address=$3, mqtt_topic=$4 WHERE id=$5",
		dev.Name, dev.Type, dev.IPAddress, dev.MQTTTopic, dev.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PersistDeviceState writes reconciled runtime state. Only the registry calls
// this; API handlers never touch status, power, is_on or last_seen directly.
func (d *DB) PersistDeviceState(ctx context.Context, dev *models.Device) error {
	_, err := d.pool.Exec(ctx,
		"UPDATE devices SET status=$1, power=$2, is_on=$3, last_seen=$4 WHERE id=$5",
		dev.Status, dev.Power, dev.IsOn, dev.LastSeen, dev.ID)
	return err
}

// DeleteDevice removes a device
func (d *DB) DeleteDevice(ctx context.Context, id int64) error {
	tag, err := d.pool.Exec(ctx, "DELETE FROM devices WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const ruleColumns = "id, name, description, device_id, condition, action, is_active, created_at"

func scanRule(row pgx.Row) (*models.AutomationRule, error) {
	var r models.AutomationRule
	var condRaw, actionRaw []byte
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.DeviceID, &condRaw, &actionRaw, &r.IsActive, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(condRaw, &r.Condition); err != nil {
		return nil, fmt.Errorf("rule %d condition: %w", r.ID, err)
	}
	if err := json.Unmarshal(actionRaw, &r.Action); err != nil {
		return nil, fmt.Errorf("rule %d action: %w", r.ID, err)
	}
	return &r, nil
}

// GetAllRules fetches every automation rule
func (d *DB) GetAllRules(ctx context.Context) ([]models.AutomationRule, error) {
	rows, err := d.pool.Query(ctx, "SELECT "+ruleColumns+" FROM automation_rules ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// GetRuleByID fetches a rule
func (d *DB) GetRuleByID(ctx context.Context, id int64) (*models.AutomationRule, error) {
	return scanRule(d.pool.QueryRow(ctx, "SELECT "+ruleColumns+" FROM automation_rules WHERE id = $1", id))
}

// InsertRule creates a rule and returns it with its assigned id
func (d *DB) InsertRule(ctx context.Context, r *models.AutomationRule) (*models.AutomationRule, error) {
	condRaw, err := json.Marshal(r.Condition)
	if err != nil {
		return nil, err
	}
	actionRaw, err := json.Marshal(r.Action)
	if err != nil {
		return nil, err
	}
	return scanRule(d.pool.QueryRow(ctx,
		`INSERT INTO automation_rules (name, description, device_id, condition, action, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+ruleColumns,
		r.Name, r.Description, r.DeviceID, condRaw, actionRaw, r.IsActive))
}

// UpdateRule overwrites a rule
func (d *DB) UpdateRule(ctx context.Context, r *models.AutomationRule) error {
	condRaw, err := json.Marshal(r.Condition)
	if err != nil {
		return err
	}
	actionRaw, err := json.Marshal(r.Action)
	if err != nil {
		return err
	}
	tag, err := d.pool.Exec(ctx,
		"UPDATE automation_rules SET name=$1, description=$2, device_id=$3, condition=$4, action=$5, is_active=$6 WHERE id=$7",
		r.Name, r.Description, r.DeviceID, condRaw, actionRaw, r.IsActive, r.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRuleActive toggles a rule's active flag
func (d *DB) SetRuleActive(ctx context.Context, id int64, active bool) error {
	tag, err := d.pool.Exec(ctx, "UPDATE automation_rules SET is_active=$1 WHERE id=$2", active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRule removes a rule
func (d *DB) DeleteRule(ctx context.Context, id int64) error {
	tag, err := d.pool.Exec(ctx, "DELETE FROM automation_rules WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetUserByUsername fetches a user row for login
func (d *DB) GetUserByUsername(ctx context.Context, username string) (id int64, passwordHash string, err error) {
	err = d.pool.QueryRow(ctx, "SELECT id, password FROM users WHERE username = $1", username).Scan(&id, &passwordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", ErrNotFound
	}
	return id, passwordHash, err
}

// InsertUser creates a user with an already-hashed password
func (d *DB) InsertUser(ctx context.Context, username, passwordHash string) (int64, error) {
	var id int64
	err := d.pool.QueryRow(ctx,
		"INSERT INTO users (username, password) VALUES ($1, $2) RETURNING id",
		username, passwordHash).Scan(&id)
	return id, err
}
