package wire

import "fmt"

// Version is the protocol version byte written by this client.
const Version uint8 = 0

// CtrlType is the message kind carried in ControlHeader.CtrlType.
type CtrlType uint8

const (
	CtrlHello   CtrlType = 0
	CtrlCommand CtrlType = 1
	CtrlFactory CtrlType = 2
	CtrlExpire  CtrlType = 3
	CtrlDone    CtrlType = 4
	CtrlRecv    CtrlType = 5
	CtrlEPROK   CtrlType = 6
	CtrlMeasOut CtrlType = 7
	CtrlGetTime CtrlType = 8
	CtrlInfTime CtrlType = 9
	CtrlNewOK   CtrlType = 10

	CtrlErrGeneral CtrlType = 20
	CtrlErrNoQubit CtrlType = 21
	CtrlErrUnsupp  CtrlType = 22
	CtrlErrTimeout CtrlType = 23
)

var ctrlNames = map[CtrlType]string{
	CtrlHello:      "HELLO",
	CtrlCommand:    "COMMAND",
	CtrlFactory:    "FACTORY",
	CtrlExpire:     "EXPIRE",
	CtrlDone:       "DONE",
	CtrlRecv:       "RECV",
	CtrlEPROK:      "EPR_OK",
	CtrlMeasOut:    "MEASOUT",
	CtrlGetTime:    "GET_TIME",
	CtrlInfTime:    "INF_TIME",
	CtrlNewOK:      "NEW_OK",
	CtrlErrGeneral: "ERR_GENERAL",
	CtrlErrNoQubit: "ERR_NOQUBIT",
	CtrlErrUnsupp:  "ERR_UNSUPP",
	CtrlErrTimeout: "ERR_TIMEOUT",
}

// ParseCtrlType maps a wire byte to a CtrlType; unknown codes are rejected.
func ParseCtrlType(b byte) (CtrlType, error) {
	t := CtrlType(b)
	if !t.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownCtrlType, b)
	}
	return t, nil
}

func (t CtrlType) Valid() bool {
	_, ok := ctrlNames[t]
	return ok
}

// IsError reports whether t is one of the server-signaled error kinds.
func (t CtrlType) IsError() bool {
	return t >= CtrlErrGeneral && t.Valid()
}

func (t CtrlType) String() string {
	if name, ok := ctrlNames[t]; ok {
		return name
	}
	return fmt.Sprintf("CTRL(%d)", uint8(t))
}

// Instr is the instruction carried in CommandHeader.Instr.
type Instr uint8

const (
	InstrI              Instr = 0
	InstrNew            Instr = 1
	InstrMeasure        Instr = 2
	InstrMeasureInplace Instr = 3
	InstrReset          Instr = 4
	InstrSend           Instr = 5
	InstrRecv           Instr = 6
	InstrEPR            Instr = 7
	InstrEPRRecv        Instr = 8

	InstrX    Instr = 10
	InstrZ    Instr = 11
	InstrY    Instr = 12
	InstrT    Instr = 13
	InstrRotX Instr = 14
	InstrRotY Instr = 15
	InstrRotZ Instr = 16
	InstrH    Instr = 17
	InstrK    Instr = 18

	InstrCNOT   Instr = 20
	InstrCPhase Instr = 21
)

var instrNames = map[Instr]string{
	InstrI:              "I",
	InstrNew:            "NEW",
	InstrMeasure:        "MEASURE",
	InstrMeasureInplace: "MEASURE_INPLACE",
	InstrReset:          "RESET",
	InstrSend:           "SEND",
	InstrRecv:           "RECV",
	InstrEPR:            "EPR",
	InstrEPRRecv:        "EPR_RECV",
	InstrX:              "X",
	InstrZ:              "Z",
	InstrY:              "Y",
	InstrT:              "T",
	InstrRotX:           "ROT_X",
	InstrRotY:           "ROT_Y",
	InstrRotZ:           "ROT_Z",
	InstrH:              "H",
	InstrK:              "K",
	InstrCNOT:           "CNOT",
	InstrCPhase:         "CPHASE",
}

// ParseInstr maps a wire byte to an Instr; unknown codes are rejected.
func ParseInstr(b byte) (Instr, error) {
	i := Instr(b)
	if !i.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownInstr, b)
	}
	return i, nil
}

func (i Instr) Valid() bool {
	_, ok := instrNames[i]
	return ok
}

// IsRotation reports whether i takes its angle from ExtendedCommandHeader.Steps.
func (i Instr) IsRotation() bool {
	return i == InstrRotX || i == InstrRotY || i == InstrRotZ
}

// IsTwoQubit reports whether i acts on a second qubit named by ExtraID.
func (i Instr) IsTwoQubit() bool {
	return i == InstrCNOT || i == InstrCPhase
}

func (i Instr) String() string {
	if name, ok := instrNames[i]; ok {
		return name
	}
	return fmt.Sprintf("INSTR(%d)", uint8(i))
}
