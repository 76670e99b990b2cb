package mtroute

// MT-type offsets within the SYSTEM device block (spec §4.3's closed
// dispatch table). The original firmware's numeric wire values for
// these types live in a message-type header that isn't part of this
// repo's reference material; the offsets below are assigned in the
// same order as the original DefineMsgTypeDestPath() switch (see
// DESIGN.md for the recorded decision).
const (
	TypeAARF uint16 = iota
	TypeBARF
	TypeROIAck
	TypeEEPROMCfgReq
	TypePowerCycleModem
	TypeFormatFlashCard
	TypePowerCycleCIS
	TypePurgeELAFlash
	TypePurgeELAFile
	TypeDownloadCISConfig
	TypeFWAck3
	TypeModemLog
	TypeAFIRSVerSN
	TypeACLocation
	TypeReset573Bus
	TypeGetLogsImmediately
	TypeGetLogsAfterFDR
)

// PowerController is the out-of-scope power manager collaborator
// (spec's external-collaborators list: "the power manager (ability to
// power-cycle modem and aux board)").
type PowerController interface {
	PowerCycleModem() error
	PowerCycleCIS() error
	Reset573Bus() error
}

// FlashController is the out-of-scope storage collaborator for the
// CIS flash card and the ELA's onboard flash/file store.
type FlashController interface {
	FormatFlashCard() error
	PurgeELAFlash() error
	PurgeELAFile() error
	DownloadCISConfig(payload []byte) error
}

// LogBundler is the out-of-scope log writer collaborator that builds
// the outbound modem-log, version, location and acknowledgement
// messages these system types trigger.
type LogBundler interface {
	SendModemLog() error
	SendAFIRSVersionSN() error
	SendACLocation() error
	SendFWAck3(payload []byte) error
	SendROIAck(payload []byte) error
	CollectLogsImmediately() error
	CollectLogsAfterFDR() error
}

// SystemDeps bundles the collaborators RegisterDefaultSystemActions
// wires the dispatch table to. A nil collaborator leaves its action a
// logged no-op rather than a panic, so a driver build that omits a
// hardware surface (e.g. no ELA fitted) still starts cleanly.
type SystemDeps struct {
	Power  PowerController
	Flash  FlashController
	Logs   LogBundler
	EEPROM func(payload []byte) error             // apply an EEPROM config request
	ARF    func(sub uint16, payload []byte) error  // A_ARF/B_ARF acknowledgement handling
	OnNoop func(sub uint16, reason string)
}

func (d SystemDeps) noop(sub uint16, reason string) error {
	if d.OnNoop != nil {
		d.OnNoop(sub, reason)
	}
	return nil
}

// RegisterDefaultSystemActions wires the 17 named SYSTEM-block MT
// types (spec §4.3, grounded on original_source/Modem.c's
// DefineMsgTypeDestPath()) to deps. All of them return BUFFER_ONLY;
// none persist the MT payload as a file.
func RegisterDefaultSystemActions(r *Router, deps SystemDeps) {
	r.RegisterSystemAction(TypeAARF, func(sub uint16, payload []byte) error {
		if deps.ARF != nil {
			return deps.ARF(sub, payload)
		}
		return deps.noop(sub, "no ARF handler configured")
	})
	r.RegisterSystemAction(TypeBARF, func(sub uint16, payload []byte) error {
		if deps.ARF != nil {
			return deps.ARF(sub, payload)
		}
		return deps.noop(sub, "no ARF handler configured")
	})
	r.RegisterSystemAction(TypeROIAck, func(sub uint16, payload []byte) error {
		if deps.Logs != nil {
			return deps.Logs.SendROIAck(payload)
		}
		return deps.noop(sub, "no log bundler configured")
	})
	r.RegisterSystemAction(TypeEEPROMCfgReq, func(sub uint16, payload []byte) error {
		if deps.EEPROM != nil {
			return deps.EEPROM(payload)
		}
		return deps.noop(sub, "no EEPROM handler configured")
	})
	r.RegisterSystemAction(TypePowerCycleModem, func(sub uint16, payload []byte) error {
		if deps.Power != nil {
			return deps.Power.PowerCycleModem()
		}
		return deps.noop(sub, "no power controller configured")
	})
	r.RegisterSystemAction(TypeFormatFlashCard, func(sub uint16, payload []byte) error {
		if deps.Flash != nil {
			return deps.Flash.FormatFlashCard()
		}
		return deps.noop(sub, "no flash controller configured")
	})
	r.RegisterSystemAction(TypePowerCycleCIS, func(sub uint16, payload []byte) error {
		if deps.Power != nil {
			return deps.Power.PowerCycleCIS()
		}
		return deps.noop(sub, "no power controller configured")
	})
	r.RegisterSystemAction(TypePurgeELAFlash, func(sub uint16, payload []byte) error {
		if deps.Flash != nil {
			return deps.Flash.PurgeELAFlash()
		}
		return deps.noop(sub, "no flash controller configured")
	})
	r.RegisterSystemAction(TypePurgeELAFile, func(sub uint16, payload []byte) error {
		if deps.Flash != nil {
			return deps.Flash.PurgeELAFile()
		}
		return deps.noop(sub, "no flash controller configured")
	})
	r.RegisterSystemAction(TypeDownloadCISConfig, func(sub uint16, payload []byte) error {
		if deps.Flash != nil {
			return deps.Flash.DownloadCISConfig(payload)
		}
		return deps.noop(sub, "no flash controller configured")
	})
	r.RegisterSystemAction(TypeFWAck3, func(sub uint16, payload []byte) error {
		if deps.Logs != nil {
			return deps.Logs.SendFWAck3(payload)
		}
		return deps.noop(sub, "no log bundler configured")
	})
	r.RegisterSystemAction(TypeModemLog, func(sub uint16, payload []byte) error {
		if deps.Logs != nil {
			return deps.Logs.SendModemLog()
		}
		return deps.noop(sub, "no log bundler configured")
	})
	r.RegisterSystemAction(TypeAFIRSVerSN, func(sub uint16, payload []byte) error {
		if deps.Logs != nil {
			return deps.Logs.SendAFIRSVersionSN()
		}
		return deps.noop(sub, "no log bundler configured")
	})
	r.RegisterSystemAction(TypeACLocation, func(sub uint16, payload []byte) error {
		if deps.Logs != nil {
			return deps.Logs.SendACLocation()
		}
		return deps.noop(sub, "no log bundler configured")
	})
	r.RegisterSystemAction(TypeReset573Bus, func(sub uint16, payload []byte) error {
		if deps.Power != nil {
			return deps.Power.Reset573Bus()
		}
		return deps.noop(sub, "no power controller configured")
	})
	r.RegisterSystemAction(TypeGetLogsImmediately, func(sub uint16, payload []byte) error {
		if deps.Logs != nil {
			return deps.Logs.CollectLogsImmediately()
		}
		return deps.noop(sub, "no log bundler configured")
	})
	r.RegisterSystemAction(TypeGetLogsAfterFDR, func(sub uint16, payload []byte) error {
		if deps.Logs != nil {
			return deps.Logs.CollectLogsAfterFDR()
		}
		return deps.noop(sub, "no log bundler configured")
	})
}
