package kv

import "context"

// Store is durable local key-value storage for small serialized snapshots.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Well-known keys.
const (
	KeyAuth            = "gymdesk.auth"
	KeyRegisterDraft   = "gymdesk.register-draft"
	KeyRegisterRole    = "gymdesk.register-role"
	KeyProviderSession = "gymdesk.provider-session"
)
