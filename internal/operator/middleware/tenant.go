package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// TenantIDHeader carries the tenant an operator is acting for
	TenantIDHeader = "X-Tenant-ID"

	// TenantIDKey is the key used to store the tenant id in the context
	TenantIDKey = "tenant_id"
)

// TenantID middleware requires a valid tenant id header on every request in
// the group. Requests without one are rejected before any handler runs: no
// financial read or write happens without a tenant.
func TenantID() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(TenantIDHeader)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "TENANT_REQUIRED",
					"message": "X-Tenant-ID header is required",
				},
			})
			return
		}

		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "TENANT_INVALID",
					"message": "X-Tenant-ID header is not a valid UUID",
				},
			})
			return
		}

		c.Set(TenantIDKey, tenantID)
		c.Next()
	}
}

// GetTenantID retrieves the tenant id set by the TenantID middleware
func GetTenantID(c *gin.Context) uuid.UUID {
	if id, exists := c.Get(TenantIDKey); exists {
		if tenantID, ok := id.(uuid.UUID); ok {
			return tenantID
		}
	}
	return uuid.Nil
}
