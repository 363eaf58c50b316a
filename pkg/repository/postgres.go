package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/cuemby/landctl/pkg/apierr"
	"github.com/cuemby/landctl/pkg/types"
)

// PostgresConfig configures the connection pool behind Postgres.
type PostgresConfig struct {
	DSN         string
	MaxOpenConn int
	MaxIdleConn int
}

// Postgres is the Repository implementation backed by a relational store.
// It keeps the teacher's boltdb.go discipline of one method per typed
// operation; each method owns its own SQL, nothing here leaks *sqlx.DB to
// callers.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres opens a bounded connection pool against cfg.DSN.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", cfg.DSN)
	if err != nil {
		return nil, apierr.Upstream("connect to postgres", err)
	}
	maxOpen := cfg.MaxOpenConn
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := cfg.MaxIdleConn
	if maxIdle <= 0 {
		maxIdle = 3
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an already-open *sqlx.DB, used by tests to inject
// a sqlmock-backed connection.
func NewPostgresFromDB(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// --- Users ---

func (p *Postgres) GetUserByID(ctx context.Context, id int64) (*types.User, error) {
	var u types.User
	err := p.db.GetContext(ctx, &u, `SELECT id, uuid, oauth_user_id, oauth_provider, avatar, name, email, role, status, created_at, updated_at, last_login_at FROM user_info WHERE id=$1 AND deleted_at IS NULL`, id)
	return wrapRow(&u, err, "user")
}

func (p *Postgres) GetUserByOAuthID(ctx context.Context, oauthID string) (*types.User, error) {
	var u types.User
	err := p.db.GetContext(ctx, &u, `SELECT id, uuid, oauth_user_id, oauth_provider, avatar, name, email, role, status, created_at, updated_at, last_login_at FROM user_info WHERE oauth_user_id=$1 AND deleted_at IS NULL`, oauthID)
	return wrapRow(&u, err, "user")
}

func (p *Postgres) FindUsersByIDs(ctx context.Context, ids []int64) ([]*types.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT id, uuid, oauth_user_id, oauth_provider, avatar, name, email, role, status, created_at, updated_at, last_login_at FROM user_info WHERE id IN (?) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, apierr.Upstream("build query", err)
	}
	query = p.db.Rebind(query)
	var users []*types.User
	if err := p.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, apierr.Upstream("find users", err)
	}
	return users, nil
}

func (p *Postgres) ListUsers(ctx context.Context, page, size int) ([]*types.User, int, error) {
	if size <= 0 {
		size = 20
	}
	if page <= 0 {
		page = 1
	}
	var total int
	if err := p.db.GetContext(ctx, &total, `SELECT count(*) FROM user_info WHERE deleted_at IS NULL`); err != nil {
		return nil, 0, apierr.Upstream("count users", err)
	}
	var users []*types.User
	err := p.db.SelectContext(ctx, &users, `SELECT id, uuid, oauth_user_id, oauth_provider, avatar, name, email, role, status, created_at, updated_at, last_login_at FROM user_info WHERE deleted_at IS NULL ORDER BY id LIMIT $1 OFFSET $2`, size, (page-1)*size)
	if err != nil {
		return nil, 0, apierr.Upstream("list users", err)
	}
	return users, total, nil
}

func (p *Postgres) IsFirstUser(ctx context.Context) (bool, error) {
	var count int
	if err := p.db.GetContext(ctx, &count, `SELECT count(*) FROM user_info`); err != nil {
		return false, apierr.Upstream("count users", err)
	}
	return count == 0, nil
}

func (p *Postgres) CreateUser(ctx context.Context, u *types.User) error {
	if u.UUID == "" {
		u.UUID = uuid.New().String()
	}
	row := p.db.QueryRowxContext(ctx, `
		INSERT INTO user_info (uuid, oauth_user_id, oauth_provider, avatar, name, email, role, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
		RETURNING id, created_at, updated_at`,
		u.UUID, u.OAuthUserID, u.OAuthProvider, u.AvatarURL, u.Name, u.Email, u.Role, u.Status)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return apierr.Conflict("user already exists")
		}
		return apierr.Upstream("create user", err)
	}
	return nil
}

// --- Settings ---

func (p *Postgres) GetSetting(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := p.db.GetContext(ctx, &value, `SELECT value FROM settings WHERE name=$1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apierr.Upstream("get setting", err)
	}
	return value, true, nil
}

func (p *Postgres) SetSetting(ctx context.Context, name, value string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO settings (name, value, updated_at) VALUES ($1,$2,now())
		ON CONFLICT (name) DO UPDATE SET value=EXCLUDED.value, updated_at=now()`, name, value)
	if err != nil {
		return apierr.Upstream("set setting", err)
	}
	return nil
}

func (p *Postgres) ListSettingNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := p.db.SelectContext(ctx, &names, `SELECT name FROM settings ORDER BY name`); err != nil {
		return nil, apierr.Upstream("list setting names", err)
	}
	return names, nil
}

// --- Projects ---

func (p *Postgres) CreateProjectWithPlayground(ctx context.Context, proj *types.Project, source string) (*types.Playground, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apierr.Upstream("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if proj.UUID == "" {
		proj.UUID = uuid.New().String()
	}
	row := tx.QueryRowxContext(ctx, `
		INSERT INTO project (uuid, owner_id, name, language, prod_domain, dev_domain, description, status, deploy_status, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
		RETURNING id, created_at, updated_at`,
		proj.UUID, proj.OwnerID, proj.Name, proj.Language, proj.ProdDomain, proj.DevDomain, proj.Description, proj.Status, proj.DeployStatus, proj.CreatedBy)
	if err := row.Scan(&proj.ID, &proj.CreatedAt, &proj.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, apierr.Conflict("project name already exists")
		}
		return nil, apierr.Upstream("create project", err)
	}

	var pg *types.Playground
	if proj.CreatedBy == types.ProjectCreatedByPlayground {
		pg = &types.Playground{
			UUID:      uuid.New().String(),
			OwnerID:   proj.OwnerID,
			ProjectID: proj.ID,
			Language:  proj.Language,
			Source:    source,
			Version:   1,
			Status:    types.PlaygroundStatusActive,
		}
		row := tx.QueryRowxContext(ctx, `
			INSERT INTO playground (owner_id, project_id, uuid, language, source, version, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,now())
			RETURNING id, created_at`,
			pg.OwnerID, pg.ProjectID, pg.UUID, pg.Language, pg.Source, pg.Version, pg.Status)
		if err := row.Scan(&pg.ID, &pg.CreatedAt); err != nil {
			return nil, apierr.Upstream("create playground", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apierr.Upstream("commit tx", err)
	}
	return pg, nil
}

func (p *Postgres) GetProjectByName(ctx context.Context, name string, ownerID *int64) (*types.Project, error) {
	var proj types.Project
	query := `SELECT id, uuid, owner_id, name, language, prod_domain, dev_domain, description, status, deploy_status, created_by, created_at, updated_at FROM project WHERE name=$1 AND deleted_at IS NULL`
	args := []interface{}{name}
	if ownerID != nil {
		query += ` AND owner_id=$2`
		args = append(args, *ownerID)
	}
	err := p.db.GetContext(ctx, &proj, query, args...)
	return wrapRow(&proj, err, "project")
}

func (p *Postgres) ListProjectsByUser(ctx context.Context, ownerID int64, status *types.ProjectStatus, limit int) ([]*types.Project, error) {
	query := `SELECT id, uuid, owner_id, name, language, prod_domain, dev_domain, description, status, deploy_status, created_by, created_at, updated_at FROM project WHERE owner_id=$1 AND deleted_at IS NULL`
	args := []interface{}{ownerID}
	if status != nil {
		query += ` AND status=$2`
		args = append(args, *status)
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d", limit)
	var projects []*types.Project
	if err := p.db.SelectContext(ctx, &projects, p.db.Rebind(query), args...); err != nil {
		return nil, apierr.Upstream("list projects", err)
	}
	return projects, nil
}

func (p *Postgres) ListProjectsPaginated(ctx context.Context, filter ProjectFilter, page, size int) ([]*types.Project, int, error) {
	if size <= 0 {
		size = 20
	}
	if page <= 0 {
		page = 1
	}
	where := []string{"deleted_at IS NULL"}
	args := []interface{}{}
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		where = append(where, fmt.Sprintf("owner_id=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := p.db.GetContext(ctx, &total, "SELECT count(*) FROM project WHERE "+whereClause, args...); err != nil {
		return nil, 0, apierr.Upstream("count projects", err)
	}

	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf(`SELECT id, uuid, owner_id, name, language, prod_domain, dev_domain, description, status, deploy_status, created_by, created_at, updated_at
		FROM project WHERE %s ORDER BY id DESC LIMIT $%d OFFSET $%d`, whereClause, len(args)-1, len(args))
	var projects []*types.Project
	if err := p.db.SelectContext(ctx, &projects, query, args...); err != nil {
		return nil, 0, apierr.Upstream("list projects", err)
	}
	return projects, total, nil
}

func (p *Postgres) DeleteProject(ctx context.Context, userID, projectID int64) error {
	res, err := p.db.ExecContext(ctx, `UPDATE project SET status=$1, deleted_at=now(), updated_at=now() WHERE id=$2 AND owner_id=$3 AND deleted_at IS NULL`,
		types.ProjectStatusDeleted, projectID, userID)
	return requireRowsAffected(res, err, "project")
}

func (p *Postgres) RenameProject(ctx context.Context, projectID int64, newName string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE project SET name=$1, updated_at=now() WHERE id=$2`, newName, projectID)
	if isUniqueViolation(err) {
		return apierr.Conflict("project name already exists")
	}
	if err != nil {
		return apierr.Upstream("rename project", err)
	}
	return nil
}

// SetProjectDomains reassigns prod_domain and/or dev_domain. An empty
// string leaves the corresponding column unchanged, so callers that only
// know one side of a deployment (e.g. ReviewLoop on a single deploy type)
// can update it without clobbering the other.
func (p *Postgres) SetProjectDomains(ctx context.Context, projectID int64, prodDomain, devDomain string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE project
		SET prod_domain = COALESCE(NULLIF($1, ''), prod_domain),
		    dev_domain = COALESCE(NULLIF($2, ''), dev_domain),
		    updated_at = now()
		WHERE id = $3`, prodDomain, devDomain, projectID)
	if err != nil {
		return apierr.Upstream("set project domains", err)
	}
	return nil
}

func (p *Postgres) SetProjectDeployStatus(ctx context.Context, projectID int64, status types.DeployStatus) error {
	_, err := p.db.ExecContext(ctx, `UPDATE project SET deploy_status=$1, updated_at=now() WHERE id=$2`, status, projectID)
	if err != nil {
		return apierr.Upstream("set project deploy status", err)
	}
	return nil
}

// --- Playgrounds ---

func (p *Postgres) CreatePlaygroundRevision(ctx context.Context, pg *types.Playground) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return apierr.Upstream("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE playground SET status=$1 WHERE project_id=$2 AND status=$3`,
		types.PlaygroundStatusDeleted, pg.ProjectID, types.PlaygroundStatusActive); err != nil {
		return apierr.Upstream("retire prior playground", err)
	}

	if pg.UUID == "" {
		pg.UUID = uuid.New().String()
	}
	row := tx.QueryRowxContext(ctx, `
		INSERT INTO playground (owner_id, project_id, uuid, language, source, version, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now()) RETURNING id, created_at`,
		pg.OwnerID, pg.ProjectID, pg.UUID, pg.Language, pg.Source, pg.Version, types.PlaygroundStatusActive)
	if err := row.Scan(&pg.ID, &pg.CreatedAt); err != nil {
		return apierr.Upstream("create playground revision", err)
	}
	pg.Status = types.PlaygroundStatusActive
	return tx.Commit()
}

func (p *Postgres) GetLatestPlayground(ctx context.Context, projectID int64) (*types.Playground, error) {
	var pg types.Playground
	err := p.db.GetContext(ctx, &pg, `SELECT id, owner_id, project_id, uuid, language, source, version, status, created_at FROM playground WHERE project_id=$1 AND status=$2 ORDER BY id DESC LIMIT 1`,
		projectID, types.PlaygroundStatusActive)
	return wrapRow(&pg, err, "playground")
}

// --- Deployments ---

func (p *Postgres) CreateDeployment(ctx context.Context, d *types.Deployment) error {
	if d.TaskID == "" {
		d.TaskID = uuid.New().String()
	}
	if d.DeployStatus == "" {
		d.DeployStatus = types.DeployStatusWaiting
	}
	row := p.db.QueryRowxContext(ctx, `
		INSERT INTO deployment (owner_id, owner_uuid, project_id, project_uuid, task_id, domain, spec, deploy_type, deploy_status, deploy_message, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now(),now())
		RETURNING id, created_at, updated_at`,
		d.OwnerID, d.OwnerUUID, d.ProjectID, d.ProjectUUID, d.TaskID, d.Domain, specJSON(d.Spec), d.DeployType, d.DeployStatus, d.DeployMessage, d.Status)
	if err := row.Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return apierr.Upstream("create deployment", err)
	}
	return nil
}

func (p *Postgres) GetDeployment(ctx context.Context, id int64) (*types.Deployment, error) {
	var d deploymentRow
	err := p.db.GetContext(ctx, &d, deploymentSelect+` WHERE id=$1 AND deleted_at IS NULL`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("deployment")
	}
	if err != nil {
		return nil, apierr.Upstream("get deployment", err)
	}
	return d.toDeployment(), nil
}

func (p *Postgres) ListDeploymentsByStatus(ctx context.Context, status types.DeployStatus) ([]*types.Deployment, error) {
	var rows []deploymentRow
	err := p.db.SelectContext(ctx, &rows, deploymentSelect+` WHERE deploy_status=$1 AND deleted_at IS NULL`, status)
	if err != nil {
		return nil, apierr.Upstream("list deployments by status", err)
	}
	out := make([]*types.Deployment, len(rows))
	for i := range rows {
		out[i] = rows[i].toDeployment()
	}
	return out, nil
}

func (p *Postgres) ListActiveDeployments(ctx context.Context) ([]*types.Deployment, error) {
	var rows []deploymentRow
	err := p.db.SelectContext(ctx, &rows, deploymentSelect+` WHERE deploy_status=$1 AND status=$2 ORDER BY task_id`, types.DeployStatusSuccess, types.DeploymentStatusActive)
	if err != nil {
		return nil, apierr.Upstream("list active deployments", err)
	}
	out := make([]*types.Deployment, len(rows))
	for i := range rows {
		out[i] = rows[i].toDeployment()
	}
	return out, nil
}

func (p *Postgres) GetLatestDeployment(ctx context.Context, projectID int64, deployType types.DeployType) (*types.Deployment, error) {
	var d deploymentRow
	err := p.db.GetContext(ctx, &d, deploymentSelect+` WHERE project_id=$1 AND deploy_type=$2 AND deleted_at IS NULL ORDER BY id DESC LIMIT 1`, projectID, deployType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("deployment")
	}
	if err != nil {
		return nil, apierr.Upstream("get latest deployment", err)
	}
	return d.toDeployment(), nil
}

func (p *Postgres) SetDeployStatus(ctx context.Context, id int64, newStatus types.DeployStatus, message string, fromAnyOf ...types.DeployStatus) (bool, error) {
	if len(fromAnyOf) == 0 {
		res, err := p.db.ExecContext(ctx, `UPDATE deployment SET deploy_status=$1, deploy_message=$2, updated_at=now() WHERE id=$3`,
			newStatus, message, id)
		if err != nil {
			return false, apierr.Upstream("set deploy status", err)
		}
		n, _ := res.RowsAffected()
		return n > 0, nil
	}
	query, args, err := sqlx.In(`UPDATE deployment SET deploy_status=?, deploy_message=?, updated_at=now() WHERE id=? AND deploy_status IN (?)`,
		newStatus, message, id, fromAnyOf)
	if err != nil {
		return false, apierr.Upstream("build conditional update", err)
	}
	res, err := p.db.ExecContext(ctx, p.db.Rebind(query), args...)
	if err != nil {
		return false, apierr.Upstream("set deploy status", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (p *Postgres) SetDeploymentStorage(ctx context.Context, id int64, path, md5 string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE deployment SET storage_path=$1, storage_md5=$2, updated_at=now() WHERE id=$3`, path, md5, id)
	if err != nil {
		return apierr.Upstream("set deployment storage", err)
	}
	return nil
}

func (p *Postgres) OutdateOtherProductionDeployments(ctx context.Context, projectID, keepDeploymentID int64) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE deployment SET status=$1, updated_at=now()
		WHERE project_id=$2 AND id<>$3 AND deploy_type=$4 AND status=$5`,
		types.DeploymentStatusOutdated, projectID, keepDeploymentID, types.DeployTypeProduction, types.DeploymentStatusActive)
	if err != nil {
		return apierr.Upstream("outdate prior production deployments", err)
	}
	return nil
}

// --- DeployTasks ---

func (p *Postgres) CreateDeployTask(ctx context.Context, t *types.DeployTask) error {
	row := p.db.QueryRowxContext(ctx, `
		INSERT INTO deploy_task (owner_id, project_id, deploy_id, task_id, task_type, task_content, worker_id, worker_ip, status, message, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
		ON CONFLICT (deploy_id, task_id, worker_ip) DO NOTHING
		RETURNING id, created_at, updated_at`,
		t.OwnerID, t.ProjectID, t.DeploymentID, t.TaskID, t.TaskType, t.TaskContent, t.WorkerID, t.WorkerIP, t.Status, t.Message)
	if err := row.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// ON CONFLICT DO NOTHING: the (deployment, worker) pair already
			// exists for this task_id. TaskFanout treats this as a no-op.
			return nil
		}
		return apierr.Upstream("create deploy task", err)
	}
	return nil
}

func (p *Postgres) ListDeployTasksByTaskID(ctx context.Context, deploymentID int64, taskID string) ([]*types.DeployTask, error) {
	var tasks []*types.DeployTask
	err := p.db.SelectContext(ctx, &tasks, `
		SELECT id, owner_id, project_id, deploy_id as deployment_id, task_id, task_type, task_content, worker_id, worker_ip, status, message, created_at, updated_at
		FROM deploy_task WHERE deploy_id=$1 AND task_id=$2`, deploymentID, taskID)
	if err != nil {
		return nil, apierr.Upstream("list deploy tasks", err)
	}
	return tasks, nil
}

func (p *Postgres) ListDeployTasks(ctx context.Context, workerIP *string, status *types.DeployTaskStatus, taskID *string) ([]*types.DeployTask, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if workerIP != nil {
		args = append(args, *workerIP)
		where = append(where, fmt.Sprintf("worker_ip=$%d", len(args)))
	}
	if status != nil {
		args = append(args, *status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if taskID != nil {
		args = append(args, *taskID)
		where = append(where, fmt.Sprintf("task_id=$%d", len(args)))
	}
	query := `SELECT id, owner_id, project_id, deploy_id as deployment_id, task_id, task_type, task_content, worker_id, worker_ip, status, message, created_at, updated_at
		FROM deploy_task WHERE ` + strings.Join(where, " AND ")
	var tasks []*types.DeployTask
	if err := p.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, apierr.Upstream("list deploy tasks", err)
	}
	return tasks, nil
}

func (p *Postgres) SetDeployTaskSuccess(ctx context.Context, workerIP, taskID string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE deploy_task SET status=$1, updated_at=now() WHERE worker_ip=$2 AND task_id=$3 AND status=$4`,
		types.DeployTaskStatusSuccess, workerIP, taskID, types.DeployTaskStatusDoing)
	if err != nil {
		return apierr.Upstream("set deploy task success", err)
	}
	return nil
}

func (p *Postgres) SetDeployTaskFailed(ctx context.Context, workerIP, taskID, message string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE deploy_task SET status=$1, message=$2, updated_at=now() WHERE worker_ip=$3 AND task_id=$4 AND status=$5`,
		types.DeployTaskStatusFailed, message, workerIP, taskID, types.DeployTaskStatusDoing)
	if err != nil {
		return apierr.Upstream("set deploy task failed", err)
	}
	return nil
}

// --- Tokens ---

func (p *Postgres) CreateToken(ctx context.Context, t *types.Token) error {
	row := p.db.QueryRowxContext(ctx, `
		INSERT INTO user_token (user_id, name, value, usage, status, created_at, updated_at, expired_at)
		VALUES ($1,$2,$3,$4,$5,now(),now(),$6)
		RETURNING id, created_at, updated_at`,
		t.UserID, t.Name, t.Value, t.Usage, t.Status, t.ExpiresAt)
	if err := row.Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return apierr.Conflict("token name already exists")
		}
		return apierr.Upstream("create token", err)
	}
	return nil
}

func (p *Postgres) GetTokenByValue(ctx context.Context, value string) (*types.Token, error) {
	var t types.Token
	err := p.db.GetContext(ctx, &t, `SELECT id, user_id, name, value, usage, status, created_at, updated_at, expired_at, latest_used_at FROM user_token WHERE value=$1`, value)
	return wrapRow(&t, err, "token")
}

func (p *Postgres) GetActiveTokenByOwnerNameUsage(ctx context.Context, ownerID int64, name string, usage types.TokenUsage) (*types.Token, error) {
	var t types.Token
	err := p.db.GetContext(ctx, &t, `SELECT id, user_id, name, value, usage, status, created_at, updated_at, expired_at, latest_used_at
		FROM user_token WHERE user_id=$1 AND name=$2 AND usage=$3 AND status=$4`,
		ownerID, name, usage, types.TokenStatusActive)
	return wrapRow(&t, err, "token")
}

func (p *Postgres) TouchTokenUsage(ctx context.Context, id int64, at int64) error {
	_, err := p.db.ExecContext(ctx, `UPDATE user_token SET latest_used_at=to_timestamp($1) WHERE id=$2`, at, id)
	if err != nil {
		return apierr.Upstream("touch token usage", err)
	}
	return nil
}

func (p *Postgres) ExpireToken(ctx context.Context, id int64) error {
	_, err := p.db.ExecContext(ctx, `UPDATE user_token SET status=$1, updated_at=now() WHERE id=$2`, types.TokenStatusExpired, id)
	if err != nil {
		return apierr.Upstream("expire token", err)
	}
	return nil
}

// --- Workers ---

func (p *Postgres) FindWorkers(ctx context.Context, status *types.WorkerStatus) ([]*types.Worker, error) {
	query := `SELECT id, ip, ipv6, hostname, region, ip_info, status, created_at, updated_at FROM worker_node`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status=$1`
		args = append(args, *status)
	}
	var workers []*types.Worker
	if err := p.db.SelectContext(ctx, &workers, query, args...); err != nil {
		return nil, apierr.Upstream("find workers", err)
	}
	return workers, nil
}

func (p *Postgres) UpsertWorkerOnline(ctx context.Context, ip, hostname, ipInfo string) (*types.Worker, bool, error) {
	var w types.Worker
	isNew := false
	err := p.db.GetContext(ctx, &w, `SELECT id, ip, ipv6, hostname, region, ip_info, status, created_at, updated_at FROM worker_node WHERE ip=$1`, ip)
	if errors.Is(err, sql.ErrNoRows) {
		isNew = true
		row := p.db.QueryRowxContext(ctx, `
			INSERT INTO worker_node (ip, hostname, ip_info, status, created_at, updated_at)
			VALUES ($1,$2,$3,$4,now(),now())
			ON CONFLICT (ip) DO UPDATE SET status=$4, ip_info=$3, updated_at=now()
			RETURNING id, ip, ipv6, hostname, region, ip_info, status, created_at, updated_at`,
			ip, hostname, ipInfo, types.WorkerStatusOnline)
		if scanErr := row.Scan(&w.ID, &w.IP, &w.IPv6, &w.Hostname, &w.Region, &w.IPInfo, &w.Status, &w.CreatedAt, &w.UpdatedAt); scanErr != nil {
			return nil, false, apierr.Upstream("create worker", scanErr)
		}
		return &w, isNew, nil
	}
	if err != nil {
		return nil, false, apierr.Upstream("get worker", err)
	}
	if _, err := p.db.ExecContext(ctx, `UPDATE worker_node SET status=$1, ip_info=$2, updated_at=now() WHERE ip=$3`, types.WorkerStatusOnline, ipInfo, ip); err != nil {
		return nil, false, apierr.Upstream("update worker", err)
	}
	w.Status = types.WorkerStatusOnline
	return &w, false, nil
}

func (p *Postgres) SetWorkerOffline(ctx context.Context, ip string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE worker_node SET status=$1, updated_at=now() WHERE ip=$2`, types.WorkerStatusOffline, ip)
	if err != nil {
		return apierr.Upstream("set worker offline", err)
	}
	return nil
}

func (p *Postgres) SetWorkersOnline(ctx context.Context, ips []string) error {
	if len(ips) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE worker_node SET status=?, updated_at=now() WHERE ip IN (?)`, types.WorkerStatusOnline, ips)
	if err != nil {
		return apierr.Upstream("build bulk update", err)
	}
	if _, err := p.db.ExecContext(ctx, p.db.Rebind(query), args...); err != nil {
		return apierr.Upstream("set workers online", err)
	}
	return nil
}

// --- helpers ---

func wrapRow[T any](v *T, err error, what string) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound(what)
	}
	if err != nil {
		return nil, apierr.Upstream("get "+what, err)
	}
	return v, nil
}

func requireRowsAffected(res sql.Result, err error, what string) error {
	if err != nil {
		return apierr.Upstream("update "+what, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apierr.NotFound(what)
	}
	return nil
}

func specJSON(s types.DeploySpec) string {
	return fmt.Sprintf(`{"cpu_limit":%v,"memory_limit_mb":%d,"fetch_limit_seconds":%d}`, s.CPULimit, s.MemoryLimitMB, s.FetchLimitSecond)
}

// deploymentRow mirrors the deployment table's spec column as raw text
// since sqlx has no generic JSON scan without a driver-specific type.
type deploymentRow struct {
	ID            int64              `db:"id"`
	OwnerID       int64              `db:"owner_id"`
	OwnerUUID     string             `db:"owner_uuid"`
	ProjectID     int64              `db:"project_id"`
	ProjectUUID   string             `db:"project_uuid"`
	TaskID        string             `db:"task_id"`
	Domain        string             `db:"domain"`
	Spec          string             `db:"spec"`
	DeployType    types.DeployType   `db:"deploy_type"`
	DeployStatus  types.DeployStatus `db:"deploy_status"`
	DeployMessage string             `db:"deploy_message"`
	Status        types.DeploymentStatus `db:"status"`
	StoragePath   string             `db:"storage_path"`
	StorageMD5    string             `db:"storage_md5"`
	CreatedAt     time.Time          `db:"created_at"`
	UpdatedAt     time.Time          `db:"updated_at"`
}

const deploymentSelect = `SELECT id, owner_id, owner_uuid, project_id, project_uuid, task_id, domain, spec, deploy_type, deploy_status, deploy_message, status, storage_path, storage_md5, created_at, updated_at FROM deployment`

func (r *deploymentRow) toDeployment() *types.Deployment {
	var spec types.DeploySpec
	_ = json.Unmarshal([]byte(r.Spec), &spec)
	return &types.Deployment{
		ID:            r.ID,
		OwnerID:       r.OwnerID,
		OwnerUUID:     r.OwnerUUID,
		ProjectID:     r.ProjectID,
		ProjectUUID:   r.ProjectUUID,
		TaskID:        r.TaskID,
		DeployType:    r.DeployType,
		Domain:        r.Domain,
		Spec:          spec,
		DeployStatus:  r.DeployStatus,
		DeployMessage: r.DeployMessage,
		Status:        r.Status,
		StoragePath:   r.StoragePath,
		StorageMD5:    r.StorageMD5,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
