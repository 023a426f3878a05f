// Package capture defines the types and collaborator interfaces shared by the
// screenshot orchestration engine: requests, per-URL jobs and results, the
// browser driver contract, artifact storage, and quality checking.
package capture
