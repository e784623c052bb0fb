package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/glassdome/pkg/errs"
	"github.com/cuemby/glassdome/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names, one per persisted entity kind (spec §6).
	bucketNetworkDefinitions     = []byte("network_definitions")
	bucketPlatformNetworkMapping = []byte("platform_network_mappings")
	bucketDeployedVMs            = []byte("deployed_vms")
	bucketVMInterfaces           = []byte("vm_interfaces")
	bucketHotSpares              = []byte("hot_spares")
)

// BoltStore implements Store using BoltDB. Writes are serialized by
// bbolt's single-writer transaction model, which is also what backs
// AcquireSpare's race-free selection below.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the Glassdome database file
// under dataDir and ensures all entity buckets exist.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "glassdome.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketNetworkDefinitions,
			bucketPlatformNetworkMapping,
			bucketDeployedVMs,
			bucketVMInterfaces,
			bucketHotSpares,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- Network definitions ---

func (s *BoltStore) CreateNetworkDefinition(n *types.NetworkDefinition) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNetworkDefinitions)
		data, err := json.Marshal(n)
		if err != nil {
			return err
		}
		return b.Put([]byte(n.ID), data)
	})
}

func (s *BoltStore) GetNetworkDefinition(id string) (*types.NetworkDefinition, error) {
	var n types.NetworkDefinition
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNetworkDefinitions)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("network definition not found: %s", id)
		}
		return json.Unmarshal(data, &n)
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *BoltStore) GetNetworkDefinitionByName(name string) (*types.NetworkDefinition, error) {
	var found *types.NetworkDefinition
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNetworkDefinitions)
		return b.ForEach(func(_, v []byte) error {
			var n types.NetworkDefinition
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if n.Name == name {
				found = &n
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("network definition not found: %s", name)
	}
	return found, nil
}

func (s *BoltStore) ListNetworkDefinitions() ([]*types.NetworkDefinition, error) {
	var list []*types.NetworkDefinition
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNetworkDefinitions)
		return b.ForEach(func(_, v []byte) error {
			var n types.NetworkDefinition
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			list = append(list, &n)
			return nil
		})
	})
	return list, err
}

func (s *BoltStore) ListNetworkDefinitionsByLab(labID string) ([]*types.NetworkDefinition, error) {
	all, err := s.ListNetworkDefinitions()
	if err != nil {
		return nil, err
	}
	var filtered []*types.NetworkDefinition
	for _, n := range all {
		if n.LabID == labID {
			filtered = append(filtered, n)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateNetworkDefinition(n *types.NetworkDefinition) error {
	return s.CreateNetworkDefinition(n)
}

// DeleteNetworkDefinition removes the definition and cascades to its
// platform mappings. VMInterface rows carry no network reference and
// are not removed.
func (s *BoltStore) DeleteNetworkDefinition(id string) error {
	if err := s.DeletePlatformNetworkMappingsByNetwork(id); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNetworkDefinitions)
		return b.Delete([]byte(id))
	})
}

// --- Platform network mappings ---

func (s *BoltStore) CreatePlatformNetworkMapping(m *types.PlatformNetworkMapping) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlatformNetworkMapping)
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return b.Put([]byte(m.ID), data)
	})
}

func (s *BoltStore) GetPlatformNetworkMapping(id string) (*types.PlatformNetworkMapping, error) {
	var m types.PlatformNetworkMapping
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlatformNetworkMapping)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("platform network mapping not found: %s", id)
		}
		return json.Unmarshal(data, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *BoltStore) ListPlatformNetworkMappingsByNetwork(networkID string) ([]*types.PlatformNetworkMapping, error) {
	var list []*types.PlatformNetworkMapping
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlatformNetworkMapping)
		return b.ForEach(func(_, v []byte) error {
			var m types.PlatformNetworkMapping
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			if m.NetworkID == networkID {
				list = append(list, &m)
			}
			return nil
		})
	})
	return list, err
}

// ListAllPlatformNetworkMappings returns every mapping across all
// networks, used by the reconciler's provisioned-networks check.
func (s *BoltStore) ListAllPlatformNetworkMappings() ([]*types.PlatformNetworkMapping, error) {
	var list []*types.PlatformNetworkMapping
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlatformNetworkMapping)
		return b.ForEach(func(_, v []byte) error {
			var m types.PlatformNetworkMapping
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			list = append(list, &m)
			return nil
		})
	})
	return list, err
}

func (s *BoltStore) UpdatePlatformNetworkMapping(m *types.PlatformNetworkMapping) error {
	return s.CreatePlatformNetworkMapping(m)
}

func (s *BoltStore) DeletePlatformNetworkMapping(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlatformNetworkMapping)
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) DeletePlatformNetworkMappingsByNetwork(networkID string) error {
	mappings, err := s.ListPlatformNetworkMappingsByNetwork(networkID)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPlatformNetworkMapping)
		for _, m := range mappings {
			if err := b.Delete([]byte(m.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Deployed VMs ---

func (s *BoltStore) CreateDeployedVM(vm *types.DeployedVM) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployedVMs)
		data, err := json.Marshal(vm)
		if err != nil {
			return err
		}
		return b.Put([]byte(vm.ID), data)
	})
}

func (s *BoltStore) GetDeployedVM(id string) (*types.DeployedVM, error) {
	var vm types.DeployedVM
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployedVMs)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("deployed vm not found: %s", id)
		}
		return json.Unmarshal(data, &vm)
	})
	if err != nil {
		return nil, err
	}
	return &vm, nil
}

// GetDeployedVMByPlatformID looks up by the (platform, instance, vm-id)
// triple the data model declares unique.
func (s *BoltStore) GetDeployedVMByPlatformID(platform, instance, vmID string) (*types.DeployedVM, error) {
	var found *types.DeployedVM
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployedVMs)
		return b.ForEach(func(_, v []byte) error {
			var vm types.DeployedVM
			if err := json.Unmarshal(v, &vm); err != nil {
				return err
			}
			if vm.Platform == platform && vm.PlatformInstance == instance && vm.VMID == vmID {
				found = &vm
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("deployed vm not found: %s/%s/%s", platform, instance, vmID)
	}
	return found, nil
}

func (s *BoltStore) ListDeployedVMs() ([]*types.DeployedVM, error) {
	var list []*types.DeployedVM
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployedVMs)
		return b.ForEach(func(_, v []byte) error {
			var vm types.DeployedVM
			if err := json.Unmarshal(v, &vm); err != nil {
				return err
			}
			list = append(list, &vm)
			return nil
		})
	})
	return list, err
}

func (s *BoltStore) ListDeployedVMsByLab(labID string) ([]*types.DeployedVM, error) {
	all, err := s.ListDeployedVMs()
	if err != nil {
		return nil, err
	}
	var filtered []*types.DeployedVM
	for _, vm := range all {
		if vm.LabID == labID {
			filtered = append(filtered, vm)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateDeployedVM(vm *types.DeployedVM) error {
	vm.UpdatedAt = time.Now()
	return s.CreateDeployedVM(vm)
}

func (s *BoltStore) DeleteDeployedVM(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployedVMs)
		return b.Delete([]byte(id))
	})
}

// --- VM interfaces ---

func (s *BoltStore) CreateVMInterface(iface *types.VMInterface) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVMInterfaces)
		data, err := json.Marshal(iface)
		if err != nil {
			return err
		}
		return b.Put([]byte(iface.ID), data)
	})
}

func (s *BoltStore) GetVMInterface(id string) (*types.VMInterface, error) {
	var iface types.VMInterface
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVMInterfaces)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("vm interface not found: %s", id)
		}
		return json.Unmarshal(data, &iface)
	})
	if err != nil {
		return nil, err
	}
	return &iface, nil
}

func (s *BoltStore) ListVMInterfacesByVM(vmID string) ([]*types.VMInterface, error) {
	var list []*types.VMInterface
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVMInterfaces)
		return b.ForEach(func(_, v []byte) error {
			var iface types.VMInterface
			if err := json.Unmarshal(v, &iface); err != nil {
				return err
			}
			if iface.VMID == vmID {
				list = append(list, &iface)
			}
			return nil
		})
	})
	sort.Slice(list, func(i, j int) bool { return list[i].InterfaceIndex < list[j].InterfaceIndex })
	return list, err
}

// ListAllVMInterfaces returns every interface across every VM, used by
// the reconciler to group interfaces by (platform, instance, vm-id).
func (s *BoltStore) ListAllVMInterfaces() ([]*types.VMInterface, error) {
	var list []*types.VMInterface
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVMInterfaces)
		return b.ForEach(func(_, v []byte) error {
			var iface types.VMInterface
			if err := json.Unmarshal(v, &iface); err != nil {
				return err
			}
			list = append(list, &iface)
			return nil
		})
	})
	sort.Slice(list, func(i, j int) bool { return list[i].InterfaceIndex < list[j].InterfaceIndex })
	return list, err
}

func (s *BoltStore) UpdateVMInterface(iface *types.VMInterface) error {
	return s.CreateVMInterface(iface)
}

func (s *BoltStore) DeleteVMInterfacesByVM(vmID string) error {
	ifaces, err := s.ListVMInterfacesByVM(vmID)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketVMInterfaces)
		for _, iface := range ifaces {
			if err := b.Delete([]byte(iface.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Hot spares ---

func (s *BoltStore) CreateHotSpare(spare *types.HotSpare) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHotSpares)
		data, err := json.Marshal(spare)
		if err != nil {
			return err
		}
		return b.Put([]byte(spare.ID), data)
	})
}

func (s *BoltStore) GetHotSpare(id string) (*types.HotSpare, error) {
	var spare types.HotSpare
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHotSpares)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("hot spare not found: %s", id)
		}
		return json.Unmarshal(data, &spare)
	})
	if err != nil {
		return nil, err
	}
	return &spare, nil
}

func (s *BoltStore) ListHotSpares() ([]*types.HotSpare, error) {
	var list []*types.HotSpare
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHotSpares)
		return b.ForEach(func(_, v []byte) error {
			var spare types.HotSpare
			if err := json.Unmarshal(v, &spare); err != nil {
				return err
			}
			list = append(list, &spare)
			return nil
		})
	})
	return list, err
}

func (s *BoltStore) ListHotSparesByPool(platform, instance, osFamily string) ([]*types.HotSpare, error) {
	all, err := s.ListHotSpares()
	if err != nil {
		return nil, err
	}
	var filtered []*types.HotSpare
	for _, sp := range all {
		if sp.Platform == platform && sp.PlatformInstance == instance && sp.OSFamily == osFamily {
			filtered = append(filtered, sp)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateHotSpare(spare *types.HotSpare) error {
	return s.CreateHotSpare(spare)
}

func (s *BoltStore) DeleteHotSpare(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHotSpares)
		return b.Delete([]byte(id))
	})
}

// AcquireSpare implements the pool's race-free claim: bbolt's db.Update
// holds the single process-wide writer lock for the whole closure, which
// is what SELECT ... FOR UPDATE SKIP LOCKED buys a SQL-backed
// implementation. Two concurrent callers cannot both claim the same row:
// the second caller's transaction begins only after the first commits, by
// which point the row it would have picked is already in-use.
func (s *BoltStore) AcquireSpare(platform, instance, osFamily, missionID string) (*types.HotSpare, error) {
	var claimed *types.HotSpare
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHotSpares)

		var candidate *types.HotSpare
		var candidateKey []byte
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var sp types.HotSpare
			if err := json.Unmarshal(v, &sp); err != nil {
				continue
			}
			if sp.Platform != platform || sp.PlatformInstance != instance || sp.OSFamily != osFamily {
				continue
			}
			if sp.Status != types.SpareReady {
				continue
			}
			if candidate == nil || sp.ReadyAt.Before(candidate.ReadyAt) {
				spCopy := sp
				candidate = &spCopy
				candidateKey = append([]byte(nil), k...)
			}
		}
		if candidate == nil {
			return fmt.Errorf("acquire spare %s/%s/%s: %w", platform, instance, osFamily, errs.ErrPoolExhausted)
		}

		candidate.Status = types.SpareInUse
		candidate.AssignedToMission = missionID
		candidate.AssignedAt = time.Now()

		data, err := json.Marshal(candidate)
		if err != nil {
			return err
		}
		if err := b.Put(candidateKey, data); err != nil {
			return err
		}
		claimed = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}
