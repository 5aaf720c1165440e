// Package handler provides HTTP handlers for the answer cache service.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/answercache/internal/answercache/biz"
	"github.com/kart-io/answercache/internal/answercache/metrics"
)

// CacheHandler handles answer cache HTTP requests.
type CacheHandler struct {
	controller *biz.CacheController
	metrics    *metrics.CacheMetrics
}

// NewCacheHandler creates a new CacheHandler.
func NewCacheHandler(controller *biz.CacheController, m *metrics.CacheMetrics) *CacheHandler {
	return &CacheHandler{
		controller: controller,
		metrics:    m,
	}
}

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// LookupRequest represents a cache lookup request.
type LookupRequest struct {
	Query   string            `json:"query" binding:"required"`
	Intent  string            `json:"intent"`
	Context map[string]string `json:"context"`
}

// Lookup 生成前查询缓存：精确层、相似层依次尝试，未命中返回
// cached=false 与分类结果。
func (h *CacheHandler) Lookup(c *gin.Context) {
	var req LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	result := h.controller.Handle(c.Request.Context(), req.Query, req.Intent, req.Context)
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: result})
}

// StoreRequest represents a cache store request.
type StoreRequest struct {
	Query    string            `json:"query" binding:"required"`
	Response string            `json:"response" binding:"required"`
	Intent   string            `json:"intent"`
	Context  map[string]string `json:"context"`
}

// Store 生成后回填缓存。
func (h *CacheHandler) Store(c *gin.Context) {
	var req StoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	h.controller.Store(c.Request.Context(), req.Query, req.Response, req.Intent, req.Context)
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Response stored"})
}

// InvalidateRequest represents a cache invalidation request.
type InvalidateRequest struct {
	Pattern string `json:"pattern" binding:"required"`
}

// InvalidateResult 失效操作结果。
type InvalidateResult struct {
	Removed int `json:"removed"`
}

// Invalidate 按模式删除缓存条目：精确键、"category:<name>" 类别
// 标记或规范化查询文本的子串。
func (h *CacheHandler) Invalidate(c *gin.Context) {
	var req InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	removed := h.controller.Invalidate(c.Request.Context(), req.Pattern)
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: InvalidateResult{Removed: removed}})
}

// PredictRequest represents a confidence prediction request.
type PredictRequest struct {
	Message string            `json:"message" binding:"required"`
	Intent  string            `json:"intent"`
	Context map[string]string `json:"context"`
}

// PredictResult 置信度预测结果。
type PredictResult struct {
	Confidence float64 `json:"confidence"`
}

// Predict 预测期望应答质量，返回值在 [0,1]。
func (h *CacheHandler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	confidence := h.controller.PredictConfidence(c.Request.Context(), req.Message, req.Intent, req.Context)
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: PredictResult{Confidence: confidence}})
}

// SampleRequest represents a quality sample submission.
type SampleRequest struct {
	Message string            `json:"message" binding:"required"`
	Intent  string            `json:"intent"`
	Context map[string]string `json:"context"`
	Label   *float64          `json:"label" binding:"required"`
}

// Sample 记录一次生成事件的质量标签，供估计器惰性重训使用。
func (h *CacheHandler) Sample(c *gin.Context) {
	var req SampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	h.controller.RecordQualitySample(c.Request.Context(), req.Message, req.Intent, req.Context, *req.Label)
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "Sample recorded"})
}

// Stats returns cache layer statistics.
func (h *CacheHandler) Stats(c *gin.Context) {
	stats := h.controller.Stats(c.Request.Context())
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: stats})
}

// Metrics 以 Prometheus 文本格式导出计数器。
func (h *CacheHandler) Metrics(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8",
		[]byte(h.metrics.Export("answercache", "cache")))
}

// Healthz reports process liveness.
func (h *CacheHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
