package at

const (
	// Terminal Control
	CRLF   = "\r\n"
	Prompt = "> "
	CtrlZ  = "\x1a"

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcNewMsg        = "+CMTI:"
	UrcMessageReport = "+CDSI:"
	UrcCallerID      = "+CLIP:"
	UrcUSSD          = "+CUSD:"
	UrcCall          = "RING"
	UrcPowerDown     = "NORMAL POWER DOWN"

	// Session commands
	CmdAt            = "AT"
	CmdEchoOff       = "ATE0"
	CmdVerboseErrors = "AT+CMEE=2"
	CmdSimStatus     = "AT+CPIN?"
	CmdProductInfo   = "ATI"
	CmdRevision      = "AT+GMR"
	CmdOperator      = "AT+COPS?"
	CmdSignalQuality = "AT+CSQ"
	CmdCallerIDOn    = "AT+CLIP=1"
	CmdSetPDUMode    = "AT+CMGF=0"
	CmdHangup        = "ATH"

	// SIM states reported by AT+CPIN?
	SimReady = "+CPIN: READY"
	SimPin   = "+CPIN: SIM PIN"
)

type ResponseType int

const (
	TypeFinal  ResponseType = iota // OK, ERROR
	TypeURC                        // Asynchronous notifications
	TypeData                       // Intermediate command output (+CSQ: ...)
	TypePrompt                     // SMS input prompt
)
