// Package factory builds pluggable components from configuration. A
// component is named by a type string and configured by a raw map that the
// registered factory decodes into its own settings struct.
//
//	reg := factory.NewRegistry[metrics.MetricsSink]("metrics sink")
//	reg.Register("influx", func(conf map[string]any) (metrics.MetricsSink, error) {
//	    var c influxConf
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newInfluxSink(c)
//	})
//	sink, err := reg.Create(factory.ModuleConfig{Type: "influx", Conf: raw})
package factory
