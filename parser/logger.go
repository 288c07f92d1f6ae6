package parser

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "parser")
