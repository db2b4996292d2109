package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/engramdb/engram/pkg/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
)

func (p *Postgres) CreateAccount(ctx context.Context, account *model.Account) error {
	if account.ID == "" {
		return goerr.New("account ID is required", goerr.T(model.ErrTagValidation))
	}

	details := account.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return goerr.Wrap(err, "failed to encode account details", goerr.T(model.ErrTagValidation))
	}

	return p.do(ctx, "create_account", func(ctx context.Context, db *pgxpool.Pool) error {
		_, err := db.Exec(ctx, `
INSERT INTO accounts (id, name, username, email, details)
VALUES ($1, $2, $3, $4, $5::jsonb)
ON CONFLICT (id) DO NOTHING`,
			string(account.ID), account.Name, account.Username, account.Email, string(detailsJSON))
		return err
	})
}

func (p *Postgres) GetAccountByID(ctx context.Context, id model.AccountID) (*model.Account, error) {
	if id == "" {
		return nil, goerr.New("account ID is required", goerr.T(model.ErrTagValidation))
	}

	var account *model.Account
	err := p.do(ctx, "get_account", func(ctx context.Context, db *pgxpool.Pool) error {
		var (
			acc         model.Account
			accID       string
			name        *string
			username    *string
			email       *string
			detailsJSON []byte
		)
		row := db.QueryRow(ctx,
			`SELECT id, name, username, email, details, created_at FROM accounts WHERE id = $1`,
			string(id))
		if err := row.Scan(&accID, &name, &username, &email, &detailsJSON, &acc.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}

		acc.ID = model.AccountID(accID)
		if name != nil {
			acc.Name = *name
		}
		if username != nil {
			acc.Username = *username
		}
		if email != nil {
			acc.Email = *email
		}
		if err := json.Unmarshal(detailsJSON, &acc.Details); err != nil {
			return goerr.Wrap(err, "failed to decode account details", goerr.V("id", id))
		}
		account = &acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, goerr.Wrap(ErrNotFound, "account not found", goerr.V("id", id))
	}
	return account, nil
}

// CreateRoom creates a room, generating an ID when none is given.
// Creating an existing room is a no-op.
func (p *Postgres) CreateRoom(ctx context.Context, id model.RoomID) (model.RoomID, error) {
	if id == "" {
		id = model.NewRoomID()
	}

	err := p.do(ctx, "create_room", func(ctx context.Context, db *pgxpool.Pool) error {
		_, err := db.Exec(ctx,
			`INSERT INTO rooms (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
			string(id))
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	if id == "" {
		return nil, goerr.New("room ID is required", goerr.T(model.ErrTagValidation))
	}

	var room *model.Room
	err := p.do(ctx, "get_room", func(ctx context.Context, db *pgxpool.Pool) error {
		var (
			r      model.Room
			roomID string
		)
		row := db.QueryRow(ctx, `SELECT id, created_at FROM rooms WHERE id = $1`, string(id))
		if err := row.Scan(&roomID, &r.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		r.ID = model.RoomID(roomID)
		room = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, goerr.Wrap(ErrNotFound, "room not found", goerr.V("id", id))
	}
	return room, nil
}

// RemoveRoom deletes a room. Participants and memories of the room go
// with it through the cascading foreign keys.
func (p *Postgres) RemoveRoom(ctx context.Context, id model.RoomID) error {
	if id == "" {
		return goerr.New("room ID is required", goerr.T(model.ErrTagValidation))
	}

	return p.do(ctx, "remove_room", func(ctx context.Context, db *pgxpool.Pool) error {
		_, err := db.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, string(id))
		return err
	})
}

func (p *Postgres) AddParticipant(ctx context.Context, userID model.AccountID, roomID model.RoomID) error {
	if userID == "" || roomID == "" {
		return goerr.New("user ID and room ID are required", goerr.T(model.ErrTagValidation))
	}

	return p.do(ctx, "add_participant", func(ctx context.Context, db *pgxpool.Pool) error {
		_, err := db.Exec(ctx, `
INSERT INTO participants (id, user_id, room_id)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, room_id) DO NOTHING`,
			string(model.NewParticipantID()), string(userID), string(roomID))
		return err
	})
}

func (p *Postgres) RemoveParticipant(ctx context.Context, userID model.AccountID, roomID model.RoomID) error {
	if userID == "" || roomID == "" {
		return goerr.New("user ID and room ID are required", goerr.T(model.ErrTagValidation))
	}

	return p.do(ctx, "remove_participant", func(ctx context.Context, db *pgxpool.Pool) error {
		_, err := db.Exec(ctx,
			`DELETE FROM participants WHERE user_id = $1 AND room_id = $2`,
			string(userID), string(roomID))
		return err
	})
}

func (p *Postgres) GetParticipantsForRoom(ctx context.Context, roomID model.RoomID) ([]model.AccountID, error) {
	if roomID == "" {
		return nil, goerr.New("room ID is required", goerr.T(model.ErrTagValidation))
	}

	var userIDs []model.AccountID
	err := p.do(ctx, "get_participants", func(ctx context.Context, db *pgxpool.Pool) error {
		rows, err := db.Query(ctx,
			`SELECT user_id FROM participants WHERE room_id = $1 ORDER BY created_at ASC`,
			string(roomID))
		if err != nil {
			return err
		}
		defer rows.Close()

		userIDs = nil
		for rows.Next() {
			var userID string
			if err := rows.Scan(&userID); err != nil {
				return err
			}
			userIDs = append(userIDs, model.AccountID(userID))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}
