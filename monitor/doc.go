// Package monitor turns a raw sample source into a stream of change
// notifications.
//
// A Monitor owns one sensor instance. It polls the source at a fixed
// cadence, passes every acquired Sample through a ChangeFilter and fans the
// resulting ChangeRecords out to subscribers registered on its Hub. Callers
// that need a fresh value right away use ReadNow, which shares the
// acquisition lock with the cadence loop but never publishes.
//
// Acquisition failures and observer failures never leave the cadence loop.
// They are delivered as Fault values to a FaultReporter.
//
//	filter, err := monitor.NewAbsThresholdFilter[float64](0.5)
//	...
//	m, err := monitor.New(src, filter, monitor.WithName("office"))
//	sub := m.Subscribe(func(rec monitor.ChangeRecord[float64]) error {
//		fmt.Println(rec.New.Value)
//		return nil
//	})
//	defer sub.Unsubscribe()
//	err = m.Start(time.Second)
package monitor
