// Package bootstrap implements the bootstrap state machine (C6, spec §4.6):
// preamble handling, the request loop, and the paginated streaming protocol
// that reconciles a mutating final state with a changes log.
//
// Grounded on core/replication.go's Synchronize loop ("start :=
// ledger.LastHeight()+1; for { request a batch; apply; advance start }"),
// generalized here to per-substate cursors plus a changes-log reconciliation
// step the teacher's single-height cursor does not need.
package bootstrap

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"synnergy-bootstrap/internal/bootstraperr"
	"synnergy-bootstrap/internal/consensusiface"
	"synnergy-bootstrap/internal/finalstate"
	"synnergy-bootstrap/internal/metrics"
	"synnergy-bootstrap/internal/peernet"
	"synnergy-bootstrap/internal/protocol"
	"synnergy-bootstrap/internal/server"
)

// ServerDeps bundles C6's collaborators (spec §6.3): the final-state store,
// the consensus controller, and the peer directory, plus the timeouts and
// page size that govern one session.
type ServerDeps struct {
	Store     finalstate.Store
	Consensus consensusiface.Controller
	Peers     peernet.Directory
	Log       logrus.FieldLogger
	Metrics   *metrics.Registry

	BootstrapPartSize int
	Version           string

	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	ReadErrorTimeout time.Duration
	BootstrapTimeout time.Duration
}

// RunServerSession drives one accepted, already-handshaken connection
// through the preamble, request loop, and (if requested) streaming. The
// caller is expected to have already completed ReadHandshake on binder.
// It returns a short result label used for metrics/logging, never an error:
// all session-fatal conditions are converted to a best-effort error frame
// (spec §7 propagation policy) and reported via the result string.
func RunServerSession(binder *server.Binder, remoteAddr string, deps ServerDeps) string {
	deadline := time.Now().Add(deps.BootstrapTimeout)

	if result, ok := preamble(binder, remoteAddr, deps); !ok {
		return result
	}

	for {
		if remaining := time.Until(deadline); remaining <= 0 {
			binder.CloseAndSendError("bootstrap timeout", remoteAddr, deps.WriteTimeout, nil)
			return "bootstrap_timeout"
		}

		msg, err := binder.Next(deps.ReadTimeout)
		if err != nil {
			if errors.Is(err, bootstraperr.ErrTimeout) {
				return "read_timeout"
			}
			logSessionError(deps.Log, remoteAddr, "request loop read failed", err)
			binder.CloseAndSendError("internal error", remoteAddr, deps.WriteTimeout, nil)
			return "fatal"
		}

		switch msg.Kind {
		case protocol.AskBootstrapPeers:
			peers, perr := deps.Peers.BootstrapPeers(16)
			if perr != nil {
				logSessionError(deps.Log, remoteAddr, "peer directory failed", perr)
				binder.CloseAndSendError("internal error", remoteAddr, deps.WriteTimeout, nil)
				return "fatal"
			}
			if err := binder.Send(protocol.ServerMessage{Kind: protocol.BootstrapPeers, Peers: peers}, deps.WriteTimeout); err != nil {
				logSessionError(deps.Log, remoteAddr, "send BootstrapPeers failed", err)
				return "fatal"
			}

		case protocol.AskBootstrapPart:
			result := streamFinalState(binder, remoteAddr, msg, deps, deadline)
			return result

		case protocol.BootstrapSuccess:
			return "success"

		case protocol.ClientBootstrapError:
			deps.Log.WithField("remote_addr", remoteAddr).WithField("text", msg.Text).Debug("bootstrap: client reported an error")
			return "received_error"

		default:
			binder.CloseAndSendError("unexpected client message", remoteAddr, deps.WriteTimeout, nil)
			return "unexpected_client_message"
		}
	}
}

// preamble implements spec §4.6.1 steps 2-3: tolerate an absent pre-message
// (timeout), treat any present message other than an error as fatal, then
// send BootstrapTime.
func preamble(binder *server.Binder, remoteAddr string, deps ServerDeps) (string, bool) {
	msg, err := binder.Next(deps.ReadErrorTimeout)
	if err != nil {
		if !errors.Is(err, bootstraperr.ErrTimeout) {
			logSessionError(deps.Log, remoteAddr, "preamble read failed", err)
			binder.CloseAndSendError("internal error", remoteAddr, deps.WriteTimeout, nil)
			return "fatal", false
		}
		// absence (timeout) is tolerated.
	} else if msg.Kind == protocol.ClientBootstrapError {
		deps.Log.WithField("remote_addr", remoteAddr).WithField("text", msg.Text).Debug("bootstrap: client reported an error during preamble")
		return "received_error", false
	} else {
		binder.CloseAndSendError("unexpected client message", remoteAddr, deps.WriteTimeout, nil)
		return "unexpected_client_message", false
	}

	if err := binder.Send(protocol.ServerMessage{
		Kind:       protocol.BootstrapTime,
		ServerTime: time.Now().Unix(),
		Version:    deps.Version,
	}, deps.WriteTimeout); err != nil {
		logSessionError(deps.Log, remoteAddr, "send BootstrapTime failed", err)
		return "fatal", false
	}
	return "", true
}

// streamFinalState implements spec §4.6.3 Steps A/B/C, looping until global
// termination for one AskBootstrapPart.
func streamFinalState(binder *server.Binder, remoteAddr string, first protocol.ClientMessage, deps ServerDeps, deadline time.Time) string {
	cursors := protocol.StartedCursors()
	if first.Cursors != nil {
		cursors = *first.Cursors
	}
	knownSlot := first.LastSlot
	consensusCursor := cursors.Consensus

	for {
		if remaining := time.Until(deadline); remaining <= 0 {
			binder.CloseAndSendError("bootstrap timeout", remoteAddr, deps.WriteTimeout, nil)
			return "bootstrap_timeout"
		}

		part, currentSlot, slotTooOld, futureSlot := readStep(deps.Store, &cursors, knownSlot, deps.BootstrapPartSize)
		if futureSlot {
			binder.CloseAndSendError(bootstraperr.ErrFutureSlot.Error(), remoteAddr, deps.WriteTimeout, nil)
			return "future_slot"
		}
		if slotTooOld {
			if err := binder.Send(protocol.ServerMessage{Kind: protocol.SlotTooOld}, deps.WriteTimeout); err != nil {
				logSessionError(deps.Log, remoteAddr, "send SlotTooOld failed", err)
			}
			return "slot_too_old"
		}

		globalStep := protocol.NewOngoing(currentSlot)
		if cursors.GlobalFinished() {
			globalStep = protocol.NewFinished(currentSlot)
		}
		changesStep := protocol.NewFinished(currentSlot)
		if len(part.StateChanges) > 0 {
			changesStep = protocol.NewOngoing(currentSlot)
		}

		if globalStep.IsFinished() && deps.Consensus != nil {
			blocks, outdated, newCursor := deps.Consensus.GetBootstrapPart(consensusCursor, changesStep, deps.BootstrapPartSize)
			consensusCursor = newCursor
			part.ConsensusPart = encodeBlocks(blocks)
			part.ConsensusOutdatedIDs = outdated
		}

		if globalStep.IsFinished() && changesStep.IsFinished() && consensusCursor.IsFinished() {
			if err := binder.Send(protocol.ServerMessage{Kind: protocol.BootstrapFinished}, deps.WriteTimeout); err != nil {
				logSessionError(deps.Log, remoteAddr, "send BootstrapFinished failed", err)
				return "fatal"
			}
			return "finished"
		}

		part.Cursors = cursors
		part.GlobalStep = globalStep
		part.ChangesStep = changesStep
		if err := binder.Send(protocol.ServerMessage{Kind: protocol.BootstrapPartMsg, Part: &part}, deps.WriteTimeout); err != nil {
			logSessionError(deps.Log, remoteAddr, "send BootstrapPart failed", err)
			return "fatal"
		}
		if deps.Metrics != nil {
			deps.Metrics.BootstrapPartSent()
		}
		knownSlot = &currentSlot
	}
}

// readStep performs Step A (spec §4.6.3): read a page from each substate
// under the store's read lock, observe the current slot, and decide whether
// the client's reported slot is future or stale. cursors is mutated with the
// advanced per-substate cursors.
func readStep(store finalstate.Store, cursors *protocol.Cursors, knownSlot *protocol.Slot, pageSize int) (part protocol.BootstrapPart, currentSlot protocol.Slot, slotTooOld, futureSlot bool) {
	store.Read(func(v finalstate.ReadView) {
		currentSlot = v.Slot()

		var ledger, pool, execOps []finalstate.Entry
		ledger, cursors.Ledger = v.LedgerPart(cursors.Ledger, pageSize)
		pool, cursors.AsyncPool = v.PoolPart(cursors.AsyncPool, pageSize)
		execOps, cursors.ExecutedOps = v.ExecutedOpsPart(cursors.ExecutedOps, pageSize)

		var cycles []finalstate.CycleRecord
		var credits []finalstate.CreditRecord
		cycles, cursors.PoSCycle = v.CycleHistoryPart(cursors.PoSCycle, pageSize)
		credits, cursors.PoSDeferredCreds = v.DeferredCreditsPart(cursors.PoSDeferredCreds, pageSize)

		part.LedgerPart = encodeEntries(ledger)
		part.AsyncPoolPart = encodeEntries(pool)
		part.ExecOpsPart = encodeEntries(execOps)
		part.PoSCyclePart = encodeCycles(cycles)
		part.PoSCreditsPart = encodeCredits(credits)

		if knownSlot != nil && knownSlot.After(currentSlot) {
			futureSlot = true
			return
		}
		since := finalstate.Since{Present: false}
		if knownSlot != nil {
			since = finalstate.Since{Slot: *knownSlot, Present: true}
			if knownSlot.Before(currentSlot) {
				changes, ok := v.StateChangesPart(since)
				if !ok {
					slotTooOld = true
					return
				}
				part.StateChanges = changes.Ops
			}
		}
	})
	return part, currentSlot, slotTooOld, futureSlot
}

func logSessionError(log logrus.FieldLogger, remoteAddr, msg string, err error) {
	log.WithField("remote_addr", remoteAddr).WithError(err).Debug("bootstrap: " + msg)
}

func encodeBlocks(blocks []consensusiface.Block) []byte {
	var out []byte
	for _, b := range blocks {
		out = append(out, b.Data...)
	}
	return out
}
