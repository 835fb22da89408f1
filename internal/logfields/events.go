package logfields

import "go.uber.org/zap"

func Event(val string) zap.Field {
	return zap.String("event", val)
}

func Probe(val string) zap.Field {
	return zap.String("probe", val)
}

func UpdateStep(val string) zap.Field {
	return zap.String("update_step", val)
}
