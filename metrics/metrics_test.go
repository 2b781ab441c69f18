package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/xapi-project/xapi-storage-script/metrics"
)

type MetricsTestSuite struct {
	suite.Suite
	reg *prometheus.Registry
	m   *metrics.Registrar
}

func TestMetricsTestSuite(t *testing.T) {
	suite.Run(t, new(MetricsTestSuite))
}

func (s *MetricsTestSuite) SetupTest() {
	s.reg = prometheus.NewRegistry()
	s.m = metrics.New(s.reg)
}

func (s *MetricsTestSuite) count() int {
	families, err := s.reg.Gather()
	s.Require().NoError(err)
	return len(families)
}

func (s *MetricsTestSuite) TestRegisterLocalAddsGauge() {
	s.Require().NoError(s.m.RegisterLocal("disk1"))
	s.Equal(1, s.count())
}

func (s *MetricsTestSuite) TestRegisterLocalRejectsDuplicateUID() {
	s.Require().NoError(s.m.RegisterLocal("disk1"))
	s.Error(s.m.RegisterLocal("disk1"))
}

func (s *MetricsTestSuite) TestDeregisterRemovesGauge() {
	s.Require().NoError(s.m.RegisterLocal("disk1"))
	s.Require().NoError(s.m.Deregister("disk1"))
	s.Equal(0, s.count())
}

func (s *MetricsTestSuite) TestDeregisterUnknownIsNoop() {
	s.NoError(s.m.Deregister("never-registered"))
}

func (s *MetricsTestSuite) TestMultipleDataSourcesCoexist() {
	s.Require().NoError(s.m.RegisterLocal("disk1"))
	s.Require().NoError(s.m.RegisterLocal("disk2"))
	s.Equal(2, s.count())

	s.Require().NoError(s.m.Deregister("disk1"))
	s.Equal(1, s.count())
}
