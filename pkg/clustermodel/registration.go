package clustermodel

// JobManagerRegistration is the tuple the resource manager keeps for each
// registered job manager, indexed both by JobID and by the job manager's
// own ResourceID.
type JobManagerRegistration struct {
	JobID       JobID
	ResourceID  ResourceID
	Address     string
	JobMasterID JobMasterID
}

// WorkerRegistration is the tuple kept for each registered task executor.
// W is the framework-specific worker handle minted by the provisioner when
// it recognizes the task executor (e.g. a container ID, a YARN container,
// or, in standalone mode, just the ResourceID again).
type WorkerRegistration[W any] struct {
	ResourceID           ResourceID
	InstanceID           InstanceID
	Address              string
	DataPort             int
	HardwareDescription  HardwareDescription
	Worker               W
}
