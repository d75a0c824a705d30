// Package tutil holds switches shared by tests.
package tutil

import (
	"os"
	"strings"
)

// IsIntegrationTest is true when MCSYNC_TEST=integration. Integration tests
// need outside services such as a MySQL server.
func IsIntegrationTest() bool {
	testType := os.Getenv("MCSYNC_TEST")
	return strings.ToLower(testType) == "integration"
}

// MysqlDSN is the database integration tests run against, taken from
// MCSYNC_TEST_MYSQL_DSN.
func MysqlDSN() string {
	return os.Getenv("MCSYNC_TEST_MYSQL_DSN")
}
