package pool_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPoolSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Worker Pool Suite")
}
