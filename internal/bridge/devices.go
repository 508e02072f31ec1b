package bridge

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-shelly/internal/coordinator"
	"github.com/nerrad567/gray-logic-shelly/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-shelly/internal/registry"
	"github.com/nerrad567/gray-logic-shelly/internal/shelly"
)

// ProvisionDevices builds a device handle and coordinator for every
// configured device and places them under bridge management.
// Must be called before Start.
func (b *Bridge) ProvisionDevices() error {
	for _, dc := range b.cfg.Devices {
		switch shelly.Generation(dc.Generation) {
		case shelly.GenerationBlock:
			b.AddDevice(b.provisionBlockDevice(dc))
		case shelly.GenerationRPC:
			b.AddDevice(b.provisionRPCDevice(dc))
		default:
			return fmt.Errorf("%w: device %s generation %d",
				ErrUnsupportedGeneration, dc.ID, dc.Generation)
		}
	}
	return nil
}

// provisionBlockDevice wires a gen1 device: REST client, coordinator,
// reload action, and registry identity resolution.
func (b *Bridge) provisionBlockDevice(dc config.DeviceConfig) ManagedDevice {
	polling := &b.cfg.Polling
	client := shelly.NewGen1Client(dc.Host, polling.GetIOTimeout())

	sleepPeriod := time.Duration(dc.SleepPeriod) * time.Second
	statusInterval := polling.GetStatusInterval()
	if sleepPeriod > 0 {
		statusInterval = 0 // sleepers get no supplementary poller
	}

	var bc *coordinator.BlockCoordinator
	bc = coordinator.NewBlockCoordinator(coordinator.BlockConfig{
		DeviceID:         dc.ID,
		Name:             dc.Name,
		Model:            dc.Model,
		Device:           client,
		SleepPeriod:      sleepPeriod,
		SleepMultiplier:  polling.SleepMultiplier,
		UpdateMultiplier: polling.UpdateMultiplier,
		PollTimeout:      polling.GetBlockPollTimeout(),
		IOTimeout:        polling.GetIOTimeout(),
		StatusInterval:   statusInterval,
		ReloadCooldown:   polling.GetReloadCooldown(),
		ReloadAction: func() error {
			b.publishReload(dc.ID)
			bc.TriggerRefresh()
			return nil
		},
		Sink:    b,
		Logger:  b.logger,
		Metrics: b.metrics,
	})

	return ManagedDevice{
		ID:          dc.ID,
		Name:        dc.Name,
		Generation:  shelly.GenerationBlock,
		Coordinator: bc,
		Identity: func() *registry.Device {
			snap := bc.Snapshot()
			if snap == nil {
				return nil
			}
			name := dc.Name
			if name == "" {
				name = snap.Settings.Name
			}
			model := dc.Model
			if model == "" {
				model = snap.Settings.Device.Type
			}
			return &registry.Device{
				ID:         dc.ID,
				MAC:        snap.Settings.Device.MAC,
				Name:       name,
				Model:      model,
				Generation: int(shelly.GenerationBlock),
				Firmware:   snap.Settings.FW,
				Host:       dc.Host,
			}
		},
	}
}

// provisionRPCDevice wires a gen2+ device: WebSocket RPC client,
// coordinator, reload action, and registry identity resolution.
func (b *Bridge) provisionRPCDevice(dc config.DeviceConfig) ManagedDevice {
	polling := &b.cfg.Polling
	client := shelly.NewGen2Client(dc.Host)

	var rc *coordinator.RPCCoordinator
	rc = coordinator.NewRPCCoordinator(coordinator.RPCConfig{
		DeviceID:          dc.ID,
		Name:              dc.Name,
		Device:            client,
		ReconnectInterval: polling.GetReconnectInterval(),
		StatusInterval:    polling.GetStatusInterval(),
		IOTimeout:         polling.GetIOTimeout(),
		ReloadCooldown:    polling.GetReloadCooldown(),
		ReloadAction: func() error {
			b.publishReload(dc.ID)
			rc.TriggerRefresh()
			return nil
		},
		Sink:    b,
		Logger:  b.logger,
		Metrics: b.metrics,
	})

	return ManagedDevice{
		ID:          dc.ID,
		Name:        dc.Name,
		Generation:  shelly.GenerationRPC,
		Coordinator: rc,
		Identity: func() *registry.Device {
			info := rc.DeviceInfo()
			if info == nil {
				return nil
			}
			name := dc.Name
			if name == "" {
				name = info.Name
			}
			model := dc.Model
			if model == "" {
				model = info.Model
			}
			return &registry.Device{
				ID:         dc.ID,
				MAC:        info.MAC,
				Name:       name,
				Model:      model,
				Generation: int(shelly.GenerationRPC),
				Firmware:   info.Version,
				Host:       dc.Host,
			}
		},
	}
}
