package wsadapters

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

/*************************************************************************************************/
/* TEST SUITES                                                                                   */
/*************************************************************************************************/

// Test suite used for WebsocketCloseError unit tests
type WebsocketCloseErrorUnitTestSuite struct {
	suite.Suite
}

// Run WebsocketCloseErrorUnitTestSuite test suite
func TestWebsocketCloseErrorUnitTestSuite(t *testing.T) {
	suite.Run(t, new(WebsocketCloseErrorUnitTestSuite))
}

/*************************************************************************************************/
/* UNIT TESTS                                                                                    */
/*************************************************************************************************/

// Test Error
func (suite *WebsocketCloseErrorUnitTestSuite) TestError() {
	err := WebsocketCloseError{Code: GoingAway, Reason: "server shutdown"}
	require.Equal(suite.T(), "connection has been closed: 1001 - server shutdown", err.Error())
}

// Test Unwrap and errors.As through a wrapping error
func (suite *WebsocketCloseErrorUnitTestSuite) TestUnwrap() {
	inner := fmt.Errorf("inner error")
	wrapped := fmt.Errorf("read failed: %w", WebsocketCloseError{Code: AbnormalClosure, Err: inner})
	require.ErrorIs(suite.T(), wrapped, inner)
	rcv := new(WebsocketCloseError)
	require.True(suite.T(), errors.As(wrapped, rcv))
	require.Equal(suite.T(), AbnormalClosure, rcv.Code)
}

// Test status code values match RFC6455
func (suite *WebsocketCloseErrorUnitTestSuite) TestStatusCodeValues() {
	require.Equal(suite.T(), 1000, int(NormalClosure))
	require.Equal(suite.T(), 1003, int(UnsupportedData))
	require.Equal(suite.T(), 1005, int(NoStatusReceived))
	require.Equal(suite.T(), 1011, int(InternalError))
	require.Equal(suite.T(), 1015, int(TLSHandshake))
}

// Test message type names
func (suite *WebsocketCloseErrorUnitTestSuite) TestMessageTypeString() {
	require.Equal(suite.T(), "text", Text.String())
	require.Equal(suite.T(), "binary", Binary.String())
	require.Equal(suite.T(), "unknown", MessageType(-1).String())
}
