package types

// WireRecord is the JSON document shipped to the log collector.
// No field uses omitempty: collectors index on a fixed schema, so absent
// values are written as null.
type WireRecord struct {
	AppName               string      `json:"appName"`
	InstanceDescriptor    *string     `json:"instance_descriptor"`
	Timestamp             string      `json:"@timestamp"`
	LoggerName            string      `json:"LoggerName"`
	SourceMethodName      *string     `json:"SourceMethodName"`
	SpanID                interface{} `json:"spanId"`
	TraceID               interface{} `json:"traceId"`
	Sampled               string      `json:"sampled"`
	SourceSimpleClassName *string     `json:"SourceSimpleClassName"`
	Message               string      `json:"message"`
	ParentID              interface{} `json:"parentId"`
	SourceClassName       *string     `json:"SourceClassName"`
	IndexName             string      `json:"indexName"`
	Facility              string      `json:"facility"`
	Severity              string      `json:"Severity"`
	Thread                string      `json:"Thread"`
	Process               string      `json:"Process"`
	Line                  string      `json:"line"`
	Level                 int         `json:"level"`
	Version               string      `json:"@version"`
	Host                  interface{} `json:"host"`
	FilePath              *string     `json:"filepath"`
	StackTrace            *string     `json:"StackTrace"`
	LoggerFile            *string     `json:"LoggerFile"`
	IsRequestLog          int         `json:"IsRequestLog"`
	Request               interface{} `json:"request"`
	ExtraData             interface{} `json:"extraData"`
	LogType               interface{} `json:"logType"`
}
