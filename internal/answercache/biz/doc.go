// Package biz 实现应答缓存层的核心业务逻辑：查询规范化、
// 波动性分类、双层精确缓存、嵌入相似度索引、置信度估计
// 以及组合以上组件的缓存控制器。
package biz
