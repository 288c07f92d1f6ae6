package lod

import "github.com/sirupsen/logrus"

var log = logrus.WithField("module", "lod")
