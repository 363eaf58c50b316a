/*
Package log provides structured logging for the control plane using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("deployfsm")                │          │
	│  │  - WithWorkerIP("203.0.113.4")               │          │
	│  │  - WithDeploymentID(42)                      │          │
	│  │  - WithTaskID("task-def456")                 │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "deployfsm",                │          │
	│  │    "time": "2024-10-13T10:30:00Z",         │          │
	│  │    "message": "deployment advanced"          │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF deployment advanced component=deployfsm │ │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all control-plane packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithWorkerIP: Add worker_ip context
  - WithDeploymentID: Add deployment_id context
  - WithTaskID: Add task_id context

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Example: "checking worker liveness: ip=203.0.113.4 last_seen=58s"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Example: "deployment created: project=fn-ab12cd34 task_id=..."

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Example: "worker marked offline: no heartbeat in 60s"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Example: "fanout failed: object store unreachable"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "failed to connect to postgres: %v"

# Usage

Initializing the Logger:

	import "github.com/cuemby/landctl/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("control plane starting")
	log.Debug("checking worker status")
	log.Warn("high task backlog detected")
	log.Error("failed to connect to object store")
	log.Fatal("cannot start without database") // Exits process

Structured Logging:

	log.Logger.Info().
		Int64("deployment_id", d.ID).
		Str("task_id", d.TaskID).
		Msg("deployment advanced")

	log.Logger.Error().
		Err(err).
		Str("worker_ip", ip).
		Msg("task fanout failed")

Component Loggers:

	// Create component-specific logger
	fsmLog := log.WithComponent("deployfsm")
	fsmLog.Info().Msg("advancing deployment")
	fsmLog.Debug().Str("task_id", d.TaskID).Msg("uploading artifact")

	// Multiple context fields
	taskLog := log.WithComponent("reviewloop").
		With().Str("task_id", t.TaskID).
		Str("worker_ip", t.WorkerIP).Logger()
	taskLog.Info().Msg("task reported success")

Context Logger Helpers:

	// Worker-specific logs
	workerLog := log.WithWorkerIP("203.0.113.4")
	workerLog.Info().Msg("worker came online")

	// Deployment-specific logs
	deployLog := log.WithDeploymentID(42)
	deployLog.Info().Msg("deployment reached success")

# Integration Points

This package integrates with:

  - pkg/deployfsm: logs state transitions and fanout outcomes
  - pkg/reviewloop: logs per-task outcome aggregation
  - pkg/workerregistry: logs reconcile-tick status transitions
  - pkg/confsnapshot: logs snapshot refresh and checksum changes
  - pkg/syncapi, pkg/adminapi: log request handling and auth failures

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"deployfsm","time":"2024-10-13T10:30:00Z","message":"deployment advanced"}
	{"level":"info","component":"reviewloop","task_id":"task-123","time":"2024-10-13T10:30:01Z","message":"task reported success"}
	{"level":"warn","component":"workerregistry","worker_ip":"203.0.113.4","time":"2024-10-13T10:30:02Z","message":"worker marked offline"}

Console Format (Development):

	10:30:00 INF deployment advanced component=deployfsm
	10:30:01 INF task reported success component=reviewloop task_id=task-123
	10:30:02 WRN worker marked offline component=workerregistry worker_ip=203.0.113.4

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int64, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Consistent error format across the codebase

# Security

Log Content:
  - Never log secrets or sensitive data
  - Redact tokens and S3 credentials before logging
  - Review logs before sharing externally

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces

Don't:
  - Log sensitive data (tokens, S3 secret keys)
  - Use Debug level in production
  - Concatenate strings (use .Str, .Int64)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
*/
package log
