package event

import "github.com/sirupsen/logrus"

// log 事件模块的日志记录器
var log = logrus.WithField("module", "event")
