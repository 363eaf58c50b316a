// Package types holds the domain structs shared across every control-plane
// package: repositories read and write them, HTTP handlers marshal them,
// background loops pass them between each other.
package types

import "time"

// UserRole distinguishes operators from ordinary users.
type UserRole string

const (
	UserRoleNormal UserRole = "normal"
	UserRoleAdmin  UserRole = "admin"
)

// UserStatus tracks whether a user may authenticate.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User is an identity created the first time an external oauth id is seen.
type User struct {
	ID            int64      `json:"id"`
	UUID          string     `json:"uuid"`
	OAuthUserID   string     `json:"oauth_user_id,omitempty"`
	OAuthProvider string     `json:"oauth_provider,omitempty"`
	AvatarURL     string     `json:"avatar_url,omitempty"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Role          UserRole   `json:"role"`
	Status        UserStatus `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastLoginAt   time.Time  `json:"last_login_at,omitempty"`
}

// TokenUsage scopes what a bearer token may be presented for.
type TokenUsage string

const (
	TokenUsageSession TokenUsage = "session"
	TokenUsageCmdline TokenUsage = "cmdline"
	TokenUsageWorker  TokenUsage = "worker"
)

// TokenStatus is the lifecycle state of a Token.
type TokenStatus string

const (
	TokenStatusActive  TokenStatus = "active"
	TokenStatusExpired TokenStatus = "expired"
	TokenStatusDeleted TokenStatus = "deleted"
)

// Token is a bearer credential scoped to one usage and one owner.
type Token struct {
	ID           int64       `json:"id"`
	UserID       int64       `json:"user_id"`
	Name         string      `json:"name"`
	Value        string      `json:"value"`
	Usage        TokenUsage  `json:"usage"`
	Status       TokenStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	ExpiresAt    time.Time   `json:"expires_at"`
	LatestUsedAt time.Time   `json:"latest_used_at,omitempty"`
}

// Usable reports whether the token can currently be presented successfully.
func (t *Token) Usable(now time.Time) bool {
	return t.Status == TokenStatusActive && now.Before(t.ExpiresAt)
}

// ProjectLanguage enumerates the languages a Project's source may be in.
type ProjectLanguage string

const (
	ProjectLanguageJavaScript ProjectLanguage = "javascript"
)

// ProjectStatus is the lifecycle state of a Project.
type ProjectStatus string

const (
	ProjectStatusActive   ProjectStatus = "active"
	ProjectStatusDisabled ProjectStatus = "disabled"
	ProjectStatusDeleted  ProjectStatus = "deleted"
)

// ProjectCreatedBy records whether a project started from the Playground
// editor or was uploaded as a prebuilt artifact.
type ProjectCreatedBy string

const (
	ProjectCreatedByPlayground ProjectCreatedBy = "playground"
	ProjectCreatedByBlank      ProjectCreatedBy = "blank"
)

// Project is a user's named function.
type Project struct {
	ID           int64            `json:"id"`
	UUID         string           `json:"uuid"`
	OwnerID      int64            `json:"owner_id"`
	Name         string           `json:"name"`
	Language     ProjectLanguage  `json:"language"`
	Description  string           `json:"description,omitempty"`
	ProdDomain   string           `json:"prod_domain,omitempty"`
	DevDomain    string           `json:"dev_domain,omitempty"`
	Status       ProjectStatus    `json:"status"`
	DeployStatus DeployStatus     `json:"deploy_status,omitempty"`
	CreatedBy    ProjectCreatedBy `json:"created_by"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	DeletedAt    *time.Time       `json:"deleted_at,omitempty"`
}

// PlaygroundStatus is the lifecycle state of a Playground row.
type PlaygroundStatus string

const (
	PlaygroundStatusActive  PlaygroundStatus = "active"
	PlaygroundStatusDeleted PlaygroundStatus = "deleted"
)

// Playground is editable source bound to a project. A new row is written on
// every edit; the previous row is marked Deleted, preserving edit history.
type Playground struct {
	ID        int64            `json:"id"`
	UUID      string           `json:"uuid"`
	OwnerID   int64            `json:"owner_id"`
	ProjectID int64            `json:"project_id"`
	Language  ProjectLanguage  `json:"language"`
	Source    string           `json:"source"`
	Version   int              `json:"version"`
	Status    PlaygroundStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	DeletedAt *time.Time       `json:"deleted_at,omitempty"`
}

// DeployType distinguishes production traffic from development preview.
type DeployType string

const (
	DeployTypeProduction  DeployType = "production"
	DeployTypeDevelopment DeployType = "development"
)

// DeployStatus is the DeploymentFSM's state, see pkg/deployfsm.
type DeployStatus string

const (
	DeployStatusWaiting   DeployStatus = "waiting"
	DeployStatusCompiling DeployStatus = "compiling"
	DeployStatusUploading DeployStatus = "uploading"
	DeployStatusDeploying DeployStatus = "deploying"
	DeployStatusSuccess   DeployStatus = "success"
	DeployStatusFailed    DeployStatus = "failed"
)

// Terminal reports whether the status is absorbing (Success or Failed).
func (s DeployStatus) Terminal() bool {
	return s == DeployStatusSuccess || s == DeployStatusFailed
}

// DeploymentStatus is the row-level lifecycle state, independent of
// DeployStatus (which tracks FSM progress).
type DeploymentStatus string

const (
	DeploymentStatusActive   DeploymentStatus = "active"
	DeploymentStatusDisabled DeploymentStatus = "disabled"
	DeploymentStatusDeleted  DeploymentStatus = "deleted"
	DeploymentStatusOutdated DeploymentStatus = "outdated"
)

// DeploySpec defaults resource limits when the caller omits them.
type DeploySpec struct {
	CPULimit         float64 `json:"cpu_limit"`
	MemoryLimitMB    int64   `json:"memory_limit_mb"`
	FetchLimitSecond int     `json:"fetch_limit_seconds"`
}

// Deployment is one attempt to make a project's code live.
type Deployment struct {
	ID            int64            `json:"id"`
	OwnerID       int64            `json:"owner_id"`
	OwnerUUID     string           `json:"owner_uuid"`
	ProjectID     int64            `json:"project_id"`
	ProjectUUID   string           `json:"project_uuid"`
	TaskID        string           `json:"task_id"`
	DeployType    DeployType       `json:"deploy_type"`
	Domain        string           `json:"domain"`
	Spec          DeploySpec       `json:"spec"`
	StoragePath   string           `json:"storage_path,omitempty"`
	StorageMD5    string           `json:"storage_md5,omitempty"`
	DeployStatus  DeployStatus     `json:"deploy_status"`
	DeployMessage string           `json:"deploy_message,omitempty"`
	Status        DeploymentStatus `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	DeletedAt     *time.Time       `json:"deleted_at,omitempty"`
}

// DeployTaskType enumerates the kinds of work a DeployTask can carry.
type DeployTaskType string

const (
	DeployTaskTypeDeployWasmToWorker DeployTaskType = "deploy_wasm_to_worker"
)

// DeployTaskStatus is the per-worker outcome of a DeployTask.
type DeployTaskStatus string

const (
	DeployTaskStatusDoing   DeployTaskStatus = "doing"
	DeployTaskStatusSuccess DeployTaskStatus = "success"
	DeployTaskStatusFailed  DeployTaskStatus = "failed"
)

// DeployTask is one worker's unit of work for one deployment.
type DeployTask struct {
	ID           int64            `json:"id"`
	OwnerID      int64            `json:"owner_id"`
	ProjectID    int64            `json:"project_id"`
	DeploymentID int64            `json:"deployment_id"`
	TaskID       string           `json:"task_id"`
	TaskType     DeployTaskType   `json:"task_type"`
	TaskContent  string           `json:"task_content,omitempty"`
	WorkerID     int64            `json:"worker_id"`
	WorkerIP     string           `json:"worker_ip"`
	Status       DeployTaskStatus `json:"status"`
	Message      string           `json:"message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// WorkerStatus reports whether a worker has been heard from recently.
type WorkerStatus string

const (
	WorkerStatusOnline  WorkerStatus = "online"
	WorkerStatusOffline WorkerStatus = "offline"
)

// Worker is a data-plane node that executes wasm functions.
type Worker struct {
	ID        int64        `json:"id"`
	IP        string       `json:"ip"`
	IPv6      string       `json:"ipv6,omitempty"`
	Hostname  string       `json:"hostname,omitempty"`
	Region    string       `json:"region,omitempty"`
	IPInfo    string       `json:"ip_info,omitempty"`
	Status    WorkerStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ConfItem is a derived, non-persistent routing record for one deployment.
type ConfItem struct {
	UserID      int64  `json:"user_id"`
	ProjectID   int64  `json:"project_id"`
	DeployID    int64  `json:"deploy_id"`
	TaskID      string `json:"task_id"`
	FileName    string `json:"file_name"`
	FileHash    string `json:"file_hash"`
	DownloadURL string `json:"download_url"`
	Domain      string `json:"domain"`
}

// ConfSnapshot is the fleet-wide union of ConfItems plus a content checksum.
type ConfSnapshot struct {
	Items    []ConfItem
	Checksum string
}
