package alerts

// Format identifies the upstream shape of a raw alert payload
type Format string

const (
	FormatMetro    Format = "tmb_metro"
	FormatBus      Format = "tmb_bus"
	FormatTram     Format = "tram"
	FormatRodalies Format = "gtfsrt"
)

// RawAlert is one upstream alert payload as returned by a gateway. One
// payload may hold any number of alerts.
type RawAlert struct {
	Format  Format
	Payload []byte
}

// TMB alert channels (metro and bus share the envelope)

type tmbResponse struct {
	Data struct {
		Alerts []tmbAlert `json:"alerts"`
	} `json:"data"`
}

type tmbAlert struct {
	ID           int64            `json:"id"`
	BeginDate    int64            `json:"begin_date"`
	EndDate      int64            `json:"end_date"`
	Status       string           `json:"status"`
	Cause        string           `json:"cause"`
	Publications []tmbPublication `json:"publications"`
}

type tmbPublication struct {
	HeaderCa         string      `json:"headerCa"`
	HeaderEs         string      `json:"headerEs"`
	HeaderEn         string      `json:"headerEn"`
	TextCa           string      `json:"textCa"`
	TextEs           string      `json:"textEs"`
	TextEn           string      `json:"textEn"`
	AffectedEntities []tmbEntity `json:"affected_entities"`
}

type tmbEntity struct {
	LineCode      string `json:"line_code"`
	LineName      string `json:"line_name"`
	DirectionName string `json:"direction_name"`
	StationCode   string `json:"station_code"`
	StationName   string `json:"station_name"`
	StopCode      string `json:"stop_code"`
	StopName      string `json:"stop_name"`
	EntranceName  string `json:"entrance_name"`
}

// TRAM network incidents

type tramAlert struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartDate   int64      `json:"startDate"`
	EndDate     int64      `json:"endDate"`
	Status      string     `json:"status"`
	Cause       string     `json:"cause"`
	Language    string     `json:"language"`
	Lines       []tramLine `json:"lines"`
}

type tramLine struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Directions []tramDirection `json:"directions"`
}

type tramDirection struct {
	Name  string     `json:"name"`
	Stops []tramStop `json:"stops"`
}

type tramStop struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
