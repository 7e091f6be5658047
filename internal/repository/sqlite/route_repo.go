// internal/repository/sqlite/route_repo.go
package sqlite

import (
	"context"

	"crediario-service/internal/domain/route"
	xerrors "crediario-service/internal/pkg/errors"
	"crediario-service/internal/pkg/textnorm"
)

// maxRouteNameLen caps bairro and rua names.
const maxRouteNameLen = 80

type RouteRepository struct {
	store *Store
	m     *mapper
}

func NewRouteRepository(store *Store) *RouteRepository {
	return &RouteRepository{store: store, m: newMapper(store.log, store.cfg.Debug)}
}

func cleanRouteName(field, name string) (string, error) {
	name = textnorm.Sanitize(name, maxRouteNameLen)
	if name == "" {
		return "", xerrors.NewValidation(field, "name is required")
	}
	return name, nil
}

// --- bairros ---

func (r *RouteRepository) CreateBairro(ctx context.Context, nome string) (*route.Bairro, error) {
	nome, err := cleanRouteName("nome", nome)
	if err != nil {
		return nil, err
	}
	id, err := r.store.RunInsert(ctx,
		"INSERT INTO bairros (nome, created_at) VALUES (?, ?)", nome, nowISO())
	if err != nil {
		return nil, err
	}
	return r.GetBairro(ctx, id)
}

func (r *RouteRepository) RenameBairro(ctx context.Context, id int64, nome string) error {
	nome, err := cleanRouteName("nome", nome)
	if err != nil {
		return err
	}
	n, err := r.store.Run(ctx, "UPDATE bairros SET nome = ? WHERE id = ?", nome, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// DeleteBairro removes a neighborhood; its ruas cascade away and their
// clients are detached by the street foreign key.
func (r *RouteRepository) DeleteBairro(ctx context.Context, id int64) error {
	n, err := r.store.Run(ctx, "DELETE FROM bairros WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *RouteRepository) GetBairro(ctx context.Context, id int64) (*route.Bairro, error) {
	row, err := r.store.GetOne(ctx,
		"SELECT id, nome, created_at FROM bairros WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, xerrors.ErrNotFound
	}
	b := r.m.Bairro(row)
	return &b, nil
}

func (r *RouteRepository) ListBairros(ctx context.Context) ([]route.Bairro, error) {
	rows, err := r.store.GetAll(ctx,
		"SELECT id, nome, created_at FROM bairros ORDER BY nome COLLATE NOCASE")
	if err != nil {
		return nil, err
	}
	out := make([]route.Bairro, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.m.Bairro(row))
	}
	return out, nil
}

// --- ruas ---

func (r *RouteRepository) CreateRua(ctx context.Context, bairroID int64, nome string) (*route.Rua, error) {
	nome, err := cleanRouteName("nome", nome)
	if err != nil {
		return nil, err
	}
	id, err := r.store.RunInsert(ctx,
		"INSERT INTO ruas (bairro_id, nome, created_at) VALUES (?, ?, ?)",
		bairroID, nome, nowISO())
	if err != nil {
		return nil, err
	}
	return r.GetRua(ctx, id)
}

func (r *RouteRepository) RenameRua(ctx context.Context, id int64, nome string) error {
	nome, err := cleanRouteName("nome", nome)
	if err != nil {
		return err
	}
	n, err := r.store.Run(ctx, "UPDATE ruas SET nome = ? WHERE id = ?", nome, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// DeleteRua removes a street; its clients survive with a null street.
func (r *RouteRepository) DeleteRua(ctx context.Context, id int64) error {
	n, err := r.store.Run(ctx, "DELETE FROM ruas WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *RouteRepository) GetRua(ctx context.Context, id int64) (*route.Rua, error) {
	row, err := r.store.GetOne(ctx,
		"SELECT id, bairro_id, nome, created_at FROM ruas WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, xerrors.ErrNotFound
	}
	rua := r.m.Rua(row)
	return &rua, nil
}

func (r *RouteRepository) ListRuas(ctx context.Context, bairroID int64) ([]route.Rua, error) {
	rows, err := r.store.GetAll(ctx,
		"SELECT id, bairro_id, nome, created_at FROM ruas WHERE bairro_id = ? ORDER BY nome COLLATE NOCASE",
		bairroID)
	if err != nil {
		return nil, err
	}
	out := make([]route.Rua, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.m.Rua(row))
	}
	return out, nil
}

// ListAllRuas returns every street, for the backup exporter.
func (r *RouteRepository) ListAllRuas(ctx context.Context) ([]route.Rua, error) {
	rows, err := r.store.GetAll(ctx,
		"SELECT id, bairro_id, nome, created_at FROM ruas ORDER BY id")
	if err != nil {
		return nil, err
	}
	out := make([]route.Rua, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.m.Rua(row))
	}
	return out, nil
}

// RuaSummaries lists a bairro's streets with pending-client counts, the
// shape the route planning screens consume.
func (r *RouteRepository) RuaSummaries(ctx context.Context, bairroID int64) ([]route.RuaSummary, error) {
	rows, err := r.store.GetAll(ctx, `
		SELECT r.id, r.bairro_id, r.nome, r.created_at, COUNT(c.id) AS client_count
		FROM ruas r
		LEFT JOIN clients c ON c.street_id = r.id AND c.status = 'pending'
		WHERE r.bairro_id = ?
		GROUP BY r.id
		ORDER BY r.nome COLLATE NOCASE`,
		bairroID)
	if err != nil {
		return nil, err
	}
	out := make([]route.RuaSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, route.RuaSummary{
			Rua:         r.m.Rua(row),
			ClientCount: asInt64(row["client_count"]),
		})
	}
	return out, nil
}
