package cache

import (
	"fmt"
	"time"

	"github.com/SAP-F-2025/inventory-import-service/internal/models"
)

// Namespace groups keys that share a TTL.
type Namespace string

const (
	NamespaceTemplates      Namespace = "plantillas"
	NamespaceTenantProducts Namespace = "productosEmpresa"
	NamespaceJobs           Namespace = "trabajos"
	NamespaceValidation     Namespace = "validacion"
	NamespaceStats          Namespace = "estadisticas"
)

var namespaceTTL = map[Namespace]time.Duration{
	NamespaceTemplates:      time.Hour,
	NamespaceTenantProducts: 30 * time.Minute,
	NamespaceJobs:           2 * time.Hour,
	NamespaceValidation:     10 * time.Minute,
	NamespaceStats:          time.Hour,
}

func (n Namespace) TTL() time.Duration {
	return namespaceTTL[n]
}

// Key is a namespaced cache key. Build one with the helpers below rather than
// by hand so tenant scoped keys cannot collide.
type Key struct {
	Namespace Namespace
	ID        string
}

func (k Key) String() string {
	return string(k.Namespace) + ":" + k.ID
}

func TemplateKey(t models.ImportType) Key {
	return Key{Namespace: NamespaceTemplates, ID: string(t)}
}

func TenantProductsKey(tenantID uint) Key {
	return Key{Namespace: NamespaceTenantProducts, ID: fmt.Sprintf("tenant:%d", tenantID)}
}

func JobKey(jobID string) Key {
	return Key{Namespace: NamespaceJobs, ID: jobID}
}

// ValidationKey is keyed by the SHA-256 of the file content.
func ValidationKey(contentHash string) Key {
	return Key{Namespace: NamespaceValidation, ID: contentHash}
}

func TenantStatsKey(tenantID uint) Key {
	return Key{Namespace: NamespaceStats, ID: fmt.Sprintf("tenant:%d", tenantID)}
}
