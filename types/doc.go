// Package types provides core types used across the agentcore library.
// This package has ZERO dependencies on other agentcore packages to avoid
// circular imports. All other packages should import types from here.
package types
