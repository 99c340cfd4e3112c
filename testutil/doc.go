/*
Package testutil 提供 duotalk 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。所有测试应优先使用此包
中的工具函数和 Mock 实现。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertMessagesEqual / AssertRoleSequence
  - 异步断言: AssertEventuallyTrue，支持超时轮询等待条件满足

# 子包

  - testutil/mocks: Mock 实现，包括 MockProvider（llm.Provider），
    支持脚本化响应、错误注入、fail-after-N 与调用记录

# 使用示例

	ctx := testutil.TestContext(t)
	provider := mocks.NewMockProvider().WithResponse("hello")
	resp, err := provider.Completion(ctx, req)
	require.NoError(t, err)
*/
package testutil
