// Package properties stores the properties a team writes contracts for.
package properties
