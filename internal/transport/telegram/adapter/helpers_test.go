package adapter

import logx "cevshenbot/pkg/logx"

func noLog() logx.Logger { return logx.Nop() }
