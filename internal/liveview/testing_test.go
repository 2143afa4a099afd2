package liveview

import "go.uber.org/zap"

func testLogger() *zap.Logger {
	log, _ := zap.NewDevelopment()
	return log
}
