// Package repository is the thin domain-facing interface over relational
// storage. Callers never speak SQL; they invoke typed operations, and every
// mutating operation that depends on prior state encodes that predicate in
// the underlying update rather than doing a read-then-write in two steps.
package repository

import (
	"context"

	"github.com/cuemby/landctl/pkg/types"
)

// ProjectFilter narrows a paginated project listing.
type ProjectFilter struct {
	OwnerID *int64
	Status  *types.ProjectStatus
	Search  string
}

// Repository is the narrow capability surface every other component uses to
// reach persistent state. It mirrors the teacher's storage.Store shape: one
// method per typed operation, nothing leaks the underlying SQL driver.
type Repository interface {
	// Users
	GetUserByID(ctx context.Context, id int64) (*types.User, error)
	GetUserByOAuthID(ctx context.Context, oauthID string) (*types.User, error)
	FindUsersByIDs(ctx context.Context, ids []int64) ([]*types.User, error)
	ListUsers(ctx context.Context, page, size int) ([]*types.User, int, error)
	IsFirstUser(ctx context.Context) (bool, error)
	CreateUser(ctx context.Context, u *types.User) error

	// Settings (ConfigStore)
	GetSetting(ctx context.Context, name string) (string, bool, error)
	SetSetting(ctx context.Context, name, value string) error
	ListSettingNames(ctx context.Context) ([]string, error)

	// Projects
	CreateProjectWithPlayground(ctx context.Context, p *types.Project, source string) (*types.Playground, error)
	GetProjectByName(ctx context.Context, name string, ownerID *int64) (*types.Project, error)
	ListProjectsByUser(ctx context.Context, ownerID int64, status *types.ProjectStatus, limit int) ([]*types.Project, error)
	ListProjectsPaginated(ctx context.Context, filter ProjectFilter, page, size int) ([]*types.Project, int, error)
	DeleteProject(ctx context.Context, userID, projectID int64) error
	RenameProject(ctx context.Context, projectID int64, newName string) error
	// SetProjectDomains reassigns the project's routing domains. An empty
	// string leaves that column unchanged.
	SetProjectDomains(ctx context.Context, projectID int64, prodDomain, devDomain string) error
	SetProjectDeployStatus(ctx context.Context, projectID int64, status types.DeployStatus) error

	// Playgrounds
	CreatePlaygroundRevision(ctx context.Context, pg *types.Playground) error
	GetLatestPlayground(ctx context.Context, projectID int64) (*types.Playground, error)

	// Deployments
	CreateDeployment(ctx context.Context, d *types.Deployment) error
	GetDeployment(ctx context.Context, id int64) (*types.Deployment, error)
	ListDeploymentsByStatus(ctx context.Context, status types.DeployStatus) ([]*types.Deployment, error)
	ListActiveDeployments(ctx context.Context) ([]*types.Deployment, error)
	GetLatestDeployment(ctx context.Context, projectID int64, deployType types.DeployType) (*types.Deployment, error)
	// SetDeployStatus performs a conditional update: the write only applies
	// if the row's current deploy_status equals fromAnyOf (or fromAnyOf is
	// empty). It reports whether a row was actually changed.
	SetDeployStatus(ctx context.Context, id int64, newStatus types.DeployStatus, message string, fromAnyOf ...types.DeployStatus) (bool, error)
	SetDeploymentStorage(ctx context.Context, id int64, path, md5 string) error
	OutdateOtherProductionDeployments(ctx context.Context, projectID, keepDeploymentID int64) error

	// DeployTasks
	CreateDeployTask(ctx context.Context, t *types.DeployTask) error
	ListDeployTasksByTaskID(ctx context.Context, deploymentID int64, taskID string) ([]*types.DeployTask, error)
	ListDeployTasks(ctx context.Context, workerIP *string, status *types.DeployTaskStatus, taskID *string) ([]*types.DeployTask, error)
	SetDeployTaskSuccess(ctx context.Context, workerIP, taskID string) error
	SetDeployTaskFailed(ctx context.Context, workerIP, taskID, message string) error

	// Tokens
	CreateToken(ctx context.Context, t *types.Token) error
	GetTokenByValue(ctx context.Context, value string) (*types.Token, error)
	GetActiveTokenByOwnerNameUsage(ctx context.Context, ownerID int64, name string, usage types.TokenUsage) (*types.Token, error)
	TouchTokenUsage(ctx context.Context, id int64, at int64) error
	ExpireToken(ctx context.Context, id int64) error

	// Workers
	FindWorkers(ctx context.Context, status *types.WorkerStatus) ([]*types.Worker, error)
	UpsertWorkerOnline(ctx context.Context, ip, hostname, ipInfo string) (*types.Worker, bool, error)
	SetWorkerOffline(ctx context.Context, ip string) error
	SetWorkersOnline(ctx context.Context, ips []string) error

	Close() error
}
