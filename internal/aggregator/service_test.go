package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"transit-aggregator/internal/alerts"
	"transit-aggregator/internal/cache"
	"transit-aggregator/internal/gateway"
	"transit-aggregator/pkg/models"
)

type fixture struct {
	gw       *stubGateway
	store    *cache.MemoryStore
	clock    *clock.Mock
	registry *alerts.Registry
	svc      *Service
}

func setupService(t *testing.T, gw *stubGateway, logger *zap.Logger, opts ...Option) *fixture {
	t.Helper()
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))

	store := cache.NewMemoryStore(mock)
	co := cache.NewCoordinator(store, logger)
	registry := alerts.NewRegistry(mock, logger)

	opts = append([]Option{WithClock(mock), WithRegistry(registry)}, opts...)
	return &fixture{
		gw:       gw,
		store:    store,
		clock:    mock,
		registry: registry,
		svc:      NewService(DefaultMode(models.TransportMetro), gw, co, logger, opts...),
	}
}

func lineByCode(t *testing.T, lines []models.Line, code string) models.Line {
	t.Helper()
	for _, l := range lines {
		if l.Code == code {
			return l
		}
	}
	t.Fatalf("line %s not found", code)
	return models.Line{}
}

func TestGetAllLines_ColdCache(t *testing.T) {
	gw := newStubGateway(5, 3)
	gw.setAlerts(metroAlerts(
		testAlert{id: 1, affected: [][2]string{{"1", "101"}, {"1", "102"}}},
		testAlert{id: 2, affected: [][2]string{{"3", "302"}}},
	))
	f := setupService(t, gw, nil)
	ctx := context.Background()

	lines := f.svc.GetAllLines(ctx)
	require.Len(t, lines, 5)

	l1 := lineByCode(t, lines, "1")
	assert.True(t, l1.HasAlerts)
	assert.Len(t, l1.Alerts, 1)

	l3 := lineByCode(t, lines, "3")
	assert.True(t, l3.HasAlerts)
	require.Len(t, l3.Alerts, 1)
	assert.Equal(t, "2", l3.Alerts[0].ID)

	for _, code := range []string{"2", "4", "5"} {
		l := lineByCode(t, lines, code)
		assert.False(t, l.HasAlerts, code)
		assert.Empty(t, l.Alerts, code)
	}

	_, ok := f.store.Get(ctx, LinesStaticKey(models.TransportMetro))
	assert.True(t, ok)
	_, ok = f.store.Get(ctx, LinesAlertsKey(models.TransportMetro))
	assert.True(t, ok)

	assert.Len(t, f.registry.Active(models.TransportMetro), 2)
}

func TestGetAllLines_WarmRefreshAfterAlertsTTL(t *testing.T) {
	gw := newStubGateway(5, 3)
	gw.setAlerts(metroAlerts(testAlert{id: 1, affected: [][2]string{{"1", "101"}}}))
	f := setupService(t, gw, nil)
	ctx := context.Background()

	lines := f.svc.GetAllLines(ctx)
	assert.True(t, lineByCode(t, lines, "1").HasAlerts)

	// the incident is resolved upstream
	gw.setAlerts(metroAlerts())
	f.clock.Add(time.Hour + time.Minute)

	lines = f.svc.GetAllLines(ctx)
	for _, l := range lines {
		assert.False(t, l.HasAlerts, l.Code)
	}
	assert.Equal(t, int32(1), gw.lineCalls.Load())
	assert.Equal(t, int32(2), gw.alertCalls.Load())
	assert.Empty(t, f.registry.Active(models.TransportMetro))
}

func TestGetAllLines_EndedAlertsAreNotAttached(t *testing.T) {
	gw := newStubGateway(2, 1)
	f := setupService(t, gw, nil)
	gw.setAlerts(metroAlerts(testAlert{
		id:       7,
		end:      f.clock.Now().Add(10 * time.Minute),
		affected: [][2]string{{"2", "201"}},
	}))
	ctx := context.Background()

	assert.True(t, lineByCode(t, f.svc.GetAllLines(ctx), "2").HasAlerts)

	// still inside the alerts TTL, but the alert itself has ended
	f.clock.Add(15 * time.Minute)
	assert.False(t, lineByCode(t, f.svc.GetAllLines(ctx), "2").HasAlerts)
	assert.Equal(t, int32(1), gw.alertCalls.Load())
}

func TestGetAllLines_DoesNotMutateCachedLines(t *testing.T) {
	gw := newStubGateway(1, 1)
	gw.setAlerts(metroAlerts(testAlert{id: 1, affected: [][2]string{{"1", "101"}}}))
	f := setupService(t, gw, nil)
	ctx := context.Background()

	f.svc.GetAllLines(ctx)

	raw, ok := f.store.Get(ctx, LinesStaticKey(models.TransportMetro))
	require.True(t, ok)
	cached := raw.([]models.Line)
	assert.False(t, cached[0].HasAlerts)
	assert.Nil(t, cached[0].Alerts)
}

func TestGetAllLines_SortedNaturally(t *testing.T) {
	gw := newStubGateway(11, 0)
	gw.lines[0], gw.lines[10] = gw.lines[10], gw.lines[0]
	f := setupService(t, gw, nil)

	lines := f.svc.GetAllLines(context.Background())

	var codes []string
	for _, l := range lines {
		codes = append(codes, l.Code)
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"}, codes)
}

func TestGetAllLines_ConcurrentCallsFetchOnce(t *testing.T) {
	gw := newStubGateway(3, 2)
	gw.delay = 20 * time.Millisecond
	f := setupService(t, gw, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Len(t, f.svc.GetAllLines(context.Background()), 3)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), gw.lineCalls.Load())
	assert.Equal(t, int32(1), gw.alertCalls.Load())
}

func TestGetLineByCode(t *testing.T) {
	f := setupService(t, newStubGateway(3, 1), nil)
	ctx := context.Background()

	line, ok := f.svc.GetLineByCode(ctx, "2")
	require.True(t, ok)
	assert.Equal(t, "L2", line.Name)

	line, ok = f.svc.GetLineByCode(ctx, "l3")
	require.True(t, ok)
	assert.Equal(t, "3", line.Code)

	_, ok = f.svc.GetLineByCode(ctx, "L9")
	assert.False(t, ok)
}

func TestGetAllStations_FanOutWithConnections(t *testing.T) {
	gw := newStubGateway(3, 4)
	gw.connections["1/102"] = []gateway.ConnectionDTO{
		{Code: "1", Name: "L1", TransportType: models.TransportMetro},
		{Code: "5", Name: "L5", Color: "0078BF", TransportType: models.TransportMetro},
		{Code: "R2", Name: "R2", TransportType: models.TransportRodalies},
	}
	f := setupService(t, gw, nil)
	ctx := context.Background()

	stations := f.svc.GetAllStations(ctx)
	require.Len(t, stations, 12)

	// ordered by line, then position on the line
	assert.Equal(t, "101", stations[0].Code)
	assert.Equal(t, "104", stations[3].Code)
	assert.Equal(t, "201", stations[4].Code)
	assert.Equal(t, "L2", stations[4].LineName)

	assert.Equal(t, []models.LineSummary{
		{Code: "5", Name: "L5", Color: "0078BF", TransportType: models.TransportMetro},
		{Code: "R2", Name: "R2", TransportType: models.TransportRodalies},
	}, stations[1].Connections)

	assert.Equal(t, int32(3), gw.stationCalls.Load())
	assert.Equal(t, int32(12), gw.connectionCalls.Load())

	// warm: nothing is fetched again
	f.svc.GetAllStations(ctx)
	assert.Equal(t, int32(3), gw.stationCalls.Load())
	assert.Equal(t, int32(12), gw.connectionCalls.Load())
}

func TestGetAllStations_PartialFanOut(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	gw := newStubGateway(10, 2)
	gw.failLines["4"] = true
	f := setupService(t, gw, zap.New(core))
	ctx := context.Background()

	stations := f.svc.GetAllStations(ctx)
	require.Len(t, stations, 18)
	for _, st := range stations {
		assert.NotEqual(t, "4", st.LineCode)
	}

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, LineStationsKey(models.TransportMetro, "4"), logs.All()[0].ContextMap()["key"])

	// the partial list is only kept for the alerts TTL
	f.svc.GetAllStations(ctx)
	assert.Equal(t, int32(10), gw.stationCalls.Load())

	delete(gw.failLines, "4")
	f.clock.Add(time.Hour + time.Minute)
	assert.Len(t, f.svc.GetAllStations(ctx), 20)
}

func TestGetAllStations_StationAlerts(t *testing.T) {
	gw := newStubGateway(3, 3)
	gw.setAlerts(metroAlerts(
		testAlert{id: 1, affected: [][2]string{{"1", "101"}, {"1", "102"}}},
		testAlert{id: 2, affected: [][2]string{{"3", "302"}}},
		testAlert{id: 3, affected: [][2]string{{"1", "102"}}},
	))
	f := setupService(t, gw, nil)
	ctx := context.Background()

	byCode := make(map[string]models.Station)
	for _, st := range f.svc.GetAllStations(ctx) {
		byCode[st.Code] = st
	}

	require.True(t, byCode["101"].HasAlerts)
	assert.Len(t, byCode["101"].Alerts, 1)
	assert.Len(t, byCode["102"].Alerts, 2)
	assert.Len(t, byCode["302"].Alerts, 1)
	assert.False(t, byCode["103"].HasAlerts)
	assert.False(t, byCode["201"].HasAlerts)

	_, ok := f.store.Get(ctx, StationsAlertsKey(models.TransportMetro))
	assert.True(t, ok)
}

func TestGetAllStations_StationAlertsFollowLineAlertsRefresh(t *testing.T) {
	gw := newStubGateway(2, 2)
	gw.setAlerts(metroAlerts(testAlert{id: 1, affected: [][2]string{{"1", "101"}}}))
	f := setupService(t, gw, nil)
	ctx := context.Background()

	assert.True(t, lineByCode(t, f.svc.GetAllLines(ctx), "1").HasAlerts)

	// the station map is built late in the line alerts' lifetime
	f.clock.Add(50 * time.Minute)
	station, ok := f.svc.GetStationByCode(ctx, "101")
	require.True(t, ok)
	assert.True(t, station.HasAlerts)

	// resolved upstream; the line alerts expire before the station map would
	gw.setAlerts(metroAlerts())
	f.clock.Add(15 * time.Minute)

	assert.False(t, lineByCode(t, f.svc.GetAllLines(ctx), "1").HasAlerts)
	station, ok = f.svc.GetStationByCode(ctx, "101")
	require.True(t, ok)
	assert.False(t, station.HasAlerts)
	assert.Empty(t, station.Alerts)
	assert.Equal(t, int32(2), gw.alertCalls.Load())
}

func TestGetAllStations_StopOnlyAlerts(t *testing.T) {
	gw := newStubGateway(2, 2)
	gw.setAlerts(metroAlerts(testAlert{id: 9, affected: [][2]string{{"", "202"}}}))
	f := setupService(t, gw, nil)
	ctx := context.Background()

	for _, l := range f.svc.GetAllLines(ctx) {
		assert.False(t, l.HasAlerts, l.Code)
	}

	byCode := make(map[string]models.Station)
	for _, st := range f.svc.GetAllStations(ctx) {
		byCode[st.Code] = st
	}
	require.True(t, byCode["202"].HasAlerts)
	assert.Equal(t, "9", byCode["202"].Alerts[0].ID)
	assert.False(t, byCode["201"].HasAlerts)
}

func TestGetStationsByLine_RecoversLineMissingFromPartialList(t *testing.T) {
	gw := newStubGateway(3, 3)
	gw.failLines["2"] = true
	f := setupService(t, gw, nil)
	ctx := context.Background()

	require.Len(t, f.svc.GetAllStations(ctx), 6)

	// upstream is back while the partial full list is still cached
	delete(gw.failLines, "2")
	stations := f.svc.GetStationsByLine(ctx, "2")
	require.Len(t, stations, 3)
	assert.Equal(t, "201", stations[0].Code)

	_, ok := f.store.Get(ctx, LineStationsKey(models.TransportMetro, "2"))
	assert.True(t, ok)
}

func TestGetStationsByLine(t *testing.T) {
	gw := newStubGateway(3, 3)
	f := setupService(t, gw, nil)
	ctx := context.Background()

	// cold: only the requested line is fetched
	stations := f.svc.GetStationsByLine(ctx, "2")
	require.Len(t, stations, 3)
	assert.Equal(t, "201", stations[0].Code)
	assert.Equal(t, int32(1), gw.stationCalls.Load())

	// warm: the line list is cut from the full station list
	f.svc.GetAllStations(ctx)
	f.store.Delete(ctx, LineStationsKey(models.TransportMetro, "3"))
	calls := gw.stationCalls.Load()

	stations = f.svc.GetStationsByLine(ctx, "L3")
	require.Len(t, stations, 3)
	assert.Equal(t, "301", stations[0].Code)
	assert.Equal(t, calls, gw.stationCalls.Load())

	_, ok := f.store.Get(ctx, LineStationsKey(models.TransportMetro, "3"))
	assert.True(t, ok)

	assert.Nil(t, f.svc.GetStationsByLine(ctx, "L42"))
}

func TestGetStationByCode(t *testing.T) {
	f := setupService(t, newStubGateway(2, 2), nil)
	ctx := context.Background()

	st, ok := f.svc.GetStationByCode(ctx, "202")
	require.True(t, ok)
	assert.Equal(t, "Station 2-2", st.Name)

	_, ok = f.svc.GetStationByCode(ctx, "999")
	assert.False(t, ok)
}

func TestGetStationsByName(t *testing.T) {
	gw := newStubGateway(2, 2)
	gw.stations["1"][0].Name = "Plaça de Sants"
	gw.stations["2"][1].Name = "Sant Antoni"
	f := setupService(t, gw, nil)
	ctx := context.Background()

	all := f.svc.GetStationsByName(ctx, "")
	assert.Len(t, all, 4)

	found := f.svc.GetStationsByName(ctx, "PLACA")
	require.Len(t, found, 1)
	assert.Equal(t, "Plaça de Sants", found[0].Name)

	found = f.svc.GetStationsByName(ctx, "sant")
	assert.Len(t, found, 2)

	assert.Empty(t, f.svc.GetStationsByName(ctx, "Sagrada"))
}

func TestGetStationRoutes(t *testing.T) {
	gw := newStubGateway(1, 1)
	gw.arrivals["101"] = []gateway.RouteDTO{
		{ID: "b", LineCode: "1", ArrivalTime: 1714550700},
		{ID: "a", LineCode: "1", ArrivalTime: 1714550460},
	}
	f := setupService(t, gw, nil)
	ctx := context.Background()

	routes := f.svc.GetStationRoutes(ctx, "101")
	require.Len(t, routes, 2)
	assert.Equal(t, "a", routes[0].ID)
	assert.Equal(t, models.TransportMetro, routes[0].TransportType)

	f.svc.GetStationRoutes(ctx, "101")
	assert.Equal(t, int32(1), gw.arrivalCalls.Load())

	f.clock.Add(31 * time.Second)
	f.svc.GetStationRoutes(ctx, "101")
	assert.Equal(t, int32(2), gw.arrivalCalls.Load())
}

type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, st models.Station) (string, bool) {
	ref, ok := m[st.Code]
	return ref, ok
}

func TestGetAllStations_ExternalRefs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	gw := newStubGateway(1, 3)
	f := setupService(t, gw, zap.New(core), WithResolver(mapResolver{"101": "M-111", "103": "M-113"}))

	stations := f.svc.GetAllStations(context.Background())
	require.Len(t, stations, 3)
	assert.Equal(t, "M-111", stations[0].ExternalRef)
	assert.Empty(t, stations[1].ExternalRef)
	assert.Equal(t, "M-113", stations[2].ExternalRef)

	warnings := logs.FilterMessage("stations without external reference").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, []interface{}{"102 Station 1-2"}, warnings[0].ContextMap()["stations"])
}

func TestWarmupAndInvalidate(t *testing.T) {
	gw := newStubGateway(2, 2)
	f := setupService(t, gw, nil)
	ctx := context.Background()

	f.svc.Warmup(ctx)
	_, ok := f.store.Get(ctx, StationsStaticKey(models.TransportMetro))
	require.True(t, ok)

	f.svc.Invalidate(ctx)
	for _, key := range []string{
		LinesStaticKey(models.TransportMetro),
		LinesAlertsKey(models.TransportMetro),
		StationsStaticKey(models.TransportMetro),
		StationsAlertsKey(models.TransportMetro),
	} {
		_, ok := f.store.Get(ctx, key)
		assert.False(t, ok, key)
	}

	f.svc.GetAllLines(ctx)
	assert.Equal(t, int32(2), gw.lineCalls.Load())
}

func TestDefaultMode(t *testing.T) {
	metro := DefaultMode(models.TransportMetro)
	assert.Equal(t, 7*24*time.Hour, metro.StaticTTL)
	assert.Equal(t, 5, metro.LineConcurrency)
	assert.Equal(t, 10, metro.StationConcurrency)

	for _, mode := range models.TransportTypes {
		m := DefaultMode(mode)
		assert.Greater(t, int64(m.StaticTTL), int64(m.AlertsTTL), mode)
		assert.Greater(t, int64(m.AlertsTTL), int64(m.RoutesTTL), mode)
	}
}
