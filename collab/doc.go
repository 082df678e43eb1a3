// Package collab 在消息路由之上实现高层协作模式：
// 基于能力匹配的任务委派（带超时的请求/响应关联）、
// 面向全体 Agent 的求助广播，以及从经验回放中挖掘改进建议。
//
// 所有等待都是有界的：超时被报告为失败结果而不是错误崩溃，
// 迟到的响应会因一次性订阅已被注销而被安全丢弃。
package collab
