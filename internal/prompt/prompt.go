// Package prompt resolves the active template for a (tenant, name) pair,
// samples among weighted A/B variants, renders template variables, and
// reorders retrieved context for long-context attention.
package prompt

import (
	"context"

	"github.com/vaultline/core/internal/model"
)

// TemplateRepository looks up active prompt template rows. Implementations
// scope tenantID themselves; an empty tenantID means "platform-wide".
type TemplateRepository interface {
	ListActive(ctx context.Context, tenantID, name string) ([]model.PromptTemplate, error)
}

// fallbackTemplate is used when neither a tenant-specific nor a global
// active row exists for name. It must always render something usable so
// the query path never hard-fails on missing prompt configuration.
const fallbackTemplate = `You are a helpful assistant for {tenant_name}. Answer the question using only the provided context.

=== CONTEXT ===
{context}

=== QUESTION ===
{question}`

const fallbackName = "rag_default"
