package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound registro inexistente
var ErrNotFound = errors.New("registro no encontrado")

// Repository maneja las operaciones de base de datos
type Repository struct {
	conn *Connection
}

// NewRepository crea un nuevo repositorio
func NewRepository(conn *Connection) *Repository {
	return &Repository{conn: conn}
}

// GetDB returns the underlying sql.DB
func (r *Repository) GetDB() *sql.DB {
	return r.conn.DB
}

// CreateCampaign registra una campaña y devuelve su ID
func (r *Repository) CreateCampaign(ctx context.Context, name, audioURL string) (int64, error) {
	query := `INSERT INTO campaigns (name, audio_url, send_start_time) VALUES (?, ?, CURRENT_TIMESTAMP)`

	result, err := r.conn.DB.ExecContext(ctx, query, name, audioURL)
	if err != nil {
		return 0, fmt.Errorf("error creando campaña: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error obteniendo ID: %w", err)
	}
	return id, nil
}

// CreateCall registra una llamada en estado "queued"
func (r *Repository) CreateCall(ctx context.Context, campaignID int64, number, callID string) error {
	query := `INSERT INTO calls (campaign_id, number, status, call_id) VALUES (?, ?, ?, ?)`

	if _, err := r.conn.DB.ExecContext(ctx, query, campaignID, number, StatusQueued, callID); err != nil {
		return fmt.Errorf("error creando llamada %s: %w", callID, err)
	}
	return nil
}

// MarkCallStarted marca la hora de inicio al entregar el archivo .call
func (r *Repository) MarkCallStarted(ctx context.Context, callID string) error {
	return r.execByCallID(ctx, `UPDATE calls SET start_time = CURRENT_TIMESTAMP WHERE call_id = ?`, callID)
}

// UpdateCallStatus registra el resultado final de una llamada.
// uniqueID solo se persiste si no está vacío.
func (r *Repository) UpdateCallStatus(ctx context.Context, callID string, status CallStatus, uniqueID string) error {
	if uniqueID != "" {
		return r.execByCallID(ctx,
			`UPDATE calls SET status = ?, uniqueid = ?, end_time = CURRENT_TIMESTAMP WHERE call_id = ?`,
			status, uniqueID, callID)
	}
	return r.execByCallID(ctx,
		`UPDATE calls SET status = ?, end_time = CURRENT_TIMESTAMP WHERE call_id = ?`,
		status, callID)
}

// MarkCampaignEnded registra la hora de fin de la campaña
func (r *Repository) MarkCampaignEnded(ctx context.Context, campaignID int64) error {
	result, err := r.conn.DB.ExecContext(ctx,
		`UPDATE campaigns SET send_end_time = CURRENT_TIMESTAMP WHERE id = ?`, campaignID)
	if err != nil {
		return fmt.Errorf("error finalizando campaña %d: %w", campaignID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("campaña %d: %w", campaignID, ErrNotFound)
	}
	return nil
}

// execByCallID ejecuta un UPDATE cuyo último argumento es call_id
func (r *Repository) execByCallID(ctx context.Context, query string, args ...any) error {
	callID := args[len(args)-1]
	result, err := r.conn.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("error actualizando llamada %v: %w", callID, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("llamada %v: %w", callID, ErrNotFound)
	}
	return nil
}

// GetCampaign obtiene una campaña por ID
func (r *Repository) GetCampaign(ctx context.Context, id int64) (*Campaign, error) {
	query := `SELECT id, name, audio_url, send_start_time, send_end_time FROM campaigns WHERE id = ?`

	var c Campaign
	var start, end sql.NullTime
	err := r.conn.DB.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.AudioURL, &start, &end)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("campaña %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error consultando campaña: %w", err)
	}
	c.SendStartTime = nullTime(start)
	c.SendEndTime = nullTime(end)
	return &c, nil
}

// GetCall obtiene una llamada por su call_id
func (r *Repository) GetCall(ctx context.Context, callID string) (*Call, error) {
	query := `
		SELECT id, campaign_id, number, status, call_id, COALESCE(uniqueid, ''), start_time, end_time
		FROM calls
		WHERE call_id = ?
	`

	var c Call
	var start, end sql.NullTime
	err := r.conn.DB.QueryRowContext(ctx, query, callID).Scan(
		&c.ID, &c.CampaignID, &c.Number, &c.Status, &c.CallID, &c.UniqueID, &start, &end,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("llamada %s: %w", callID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error consultando llamada: %w", err)
	}
	c.StartTime = nullTime(start)
	c.EndTime = nullTime(end)
	return &c, nil
}

// ListCallsByCampaign lista las llamadas de una campaña en orden de creación
func (r *Repository) ListCallsByCampaign(ctx context.Context, campaignID int64, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, campaign_id, number, status, call_id, COALESCE(uniqueid, ''), start_time, end_time
		FROM calls
		WHERE campaign_id = ?
		ORDER BY id
		LIMIT ?
	`

	rows, err := r.conn.DB.QueryContext(ctx, query, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("error listando llamadas: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var c Call
		var start, end sql.NullTime
		if err := rows.Scan(&c.ID, &c.CampaignID, &c.Number, &c.Status, &c.CallID, &c.UniqueID, &start, &end); err != nil {
			return nil, fmt.Errorf("error escaneando llamada: %w", err)
		}
		c.StartTime = nullTime(start)
		c.EndTime = nullTime(end)
		calls = append(calls, c)
	}
	return calls, rows.Err()
}

// GetCampaignSummary cuenta las llamadas de la campaña agrupadas por estado
func (r *Repository) GetCampaignSummary(ctx context.Context, campaignID int64) (*CampaignSummary, error) {
	campaign, err := r.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM calls WHERE campaign_id = ? GROUP BY status`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("error contando llamadas: %w", err)
	}
	defer rows.Close()

	summary := &CampaignSummary{Campaign: *campaign, ByStatus: make(map[string]int)}
	for rows.Next() {
		var status CallStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("error escaneando conteo: %w", err)
		}
		summary.ByStatus[status.String()] = count
		summary.Total += count
	}
	return summary, rows.Err()
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
