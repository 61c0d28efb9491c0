/*
Copyright 2017 Heptio Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package logging

import (
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

// InstallDiagnosticFileHook mirrors every log entry at Warn level and above
// into path, in addition to whatever logrus output is already configured.
// Nothing in this module calls it; the server preparer does not install it.
func InstallDiagnosticFileHook(path string) error {
	hook := lfshook.NewHook(lfshook.PathMap{
		logrus.WarnLevel:  path,
		logrus.ErrorLevel: path,
		logrus.FatalLevel: path,
		logrus.PanicLevel: path,
	})
	hook.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	logrus.AddHook(hook)
	return nil
}
