// Package store 提供缓存层的持久化实现：Redis 共享缓存层
// 与 SQLite 质量样本存储。
package store
