// SPDX-License-Identifier: MPL-2.0

// Package testutil holds helpers shared by stackctl tests: fail-fast file and
// directory setup, and a semaphore that bounds how many tests touch a real
// container engine at once. Mock engines live in the enginetest subpackage.
package testutil
