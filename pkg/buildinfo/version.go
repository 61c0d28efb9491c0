/*
Copyright 2018 Heptio Inc.

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

// Package buildinfo holds build-time information like the ats version.
// This is a separate package so that other packages can import it without
// worrying about introducing circular dependencies.
package buildinfo

// Version is the current version of ats-console and ats-olc-server, set by
// the go linker's -X flag at build time. spec.md's worked examples compare
// this against a running server's reported version (§8's "Version match,
// reuse" scenario).
var Version = "v1"

// GitSHA is the actual commit being built, set by the go linker's -X flag.
var GitSHA string

// BuildUser is the user that produced the build, set by the go linker's -X
// flag.
var BuildUser string

// BuildTime is the time the build was produced, set by the go linker's -X
// flag.
var BuildTime string
