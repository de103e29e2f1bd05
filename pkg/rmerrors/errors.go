// Package rmerrors is the error registry for the resource manager. Every
// error the core can produce is a normalized, RFC-coded sentinel so callers
// can match on it with errors.Is and so logs carry a stable error code.
package rmerrors

import (
	"github.com/pingcap/errors"
)

var (
	// registration path

	ErrJobLeaderServiceAddJob = errors.Normalize(
		"could not add job %s to the job leader id service",
		errors.RFCCodeText("RM:ErrJobLeaderServiceAddJob"),
	)
	ErrJobLeaderServiceGetLeaderID = errors.Normalize(
		"could not obtain the job leader id future for job %s",
		errors.RFCCodeText("RM:ErrJobLeaderServiceGetLeaderID"),
	)
	ErrLeaderIDMismatch = errors.Normalize(
		"the leading job master id %s did not match the received job master id %s; a leader change has happened",
		errors.RFCCodeText("RM:ErrLeaderIDMismatch"),
	)
	ErrOutdatedTaskExecutorRegistration = errors.Normalize(
		"outdated task executor registration for resource %s",
		errors.RFCCodeText("RM:ErrOutdatedTaskExecutorRegistration"),
	)
	ErrUnrecognizedTaskExecutor = errors.Normalize(
		"the framework backend did not recognize task executor %s",
		errors.RFCCodeText("RM:ErrUnrecognizedTaskExecutor"),
	)
	ErrUnknownTaskExecutor = errors.Normalize(
		"unknown task executor %s",
		errors.RFCCodeText("RM:ErrUnknownTaskExecutor"),
	)
	ErrStaleSlotReport = errors.Normalize(
		"slot report from %s carries instance id %s which does not match the current registration %s",
		errors.RFCCodeText("RM:ErrStaleSlotReport"),
	)

	// slot request dispatch

	ErrUnregisteredJobManager = errors.Normalize(
		"no registered job manager for job %s",
		errors.RFCCodeText("RM:ErrUnregisteredJobManager"),
	)
	ErrLeadershipMismatch = errors.Normalize(
		"the job leader's id %s does not match the received id %s",
		errors.RFCCodeText("RM:ErrLeadershipMismatch"),
	)
	ErrUnfulfillableSlotRequest = errors.Normalize(
		"slot request %s cannot be fulfilled by any currently free slot",
		errors.RFCCodeText("RM:ErrUnfulfillableSlotRequest"),
	)

	// fencing / leadership

	ErrNotLeader = errors.Normalize(
		"rejecting request: this resource manager does not currently hold leadership",
		errors.RFCCodeText("RM:ErrNotLeader"),
	)
	ErrFencingTokenMismatch = errors.Normalize(
		"fencing token mismatch: request carried %s, current leader is %s",
		errors.RFCCodeText("RM:ErrFencingTokenMismatch"),
	)

	// fatal

	ErrLeaderElectionServiceFailed = errors.Normalize(
		"the leader election service reported a fatal error",
		errors.RFCCodeText("RM:ErrLeaderElectionServiceFailed"),
	)
	ErrJobLeaderServiceClearFailed = errors.Normalize(
		"could not clear the job leader id service",
		errors.RFCCodeText("RM:ErrJobLeaderServiceClearFailed"),
	)
	ErrStartResourceManagerServicesFailed = errors.Normalize(
		"could not start resource manager services",
		errors.RFCCodeText("RM:ErrStartResourceManagerServicesFailed"),
	)
	ErrActorMailboxFull = errors.Normalize(
		"actor mailbox is full, dropped command %s",
		errors.RFCCodeText("RM:ErrActorMailboxFull"),
	)
	ErrActorClosed = errors.Normalize(
		"actor loop is closed",
		errors.RFCCodeText("RM:ErrActorClosed"),
	)

	// transport

	ErrGatewayConnectFailed = errors.Normalize(
		"could not connect to remote gateway at %s",
		errors.RFCCodeText("RM:ErrGatewayConnectFailed"),
	)
	ErrFencedCallRejected = errors.Normalize(
		"fenced rpc %s rejected at transport layer: %s",
		errors.RFCCodeText("RM:ErrFencedCallRejected"),
	)

	// configuration

	ErrConfigParseFlagSet = errors.Normalize(
		"parse config flag set failed",
		errors.RFCCodeText("RM:ErrConfigParseFlagSet"),
	)
	ErrConfigInvalidFlag = errors.Normalize(
		"'%s' is an invalid flag",
		errors.RFCCodeText("RM:ErrConfigInvalidFlag"),
	)
	ErrConfigUnknownItem = errors.Normalize(
		"unknown config item: %s",
		errors.RFCCodeText("RM:ErrConfigUnknownItem"),
	)
	ErrDecodeConfigFile = errors.Normalize(
		"decode config file failed",
		errors.RFCCodeText("RM:ErrDecodeConfigFile"),
	)
)
