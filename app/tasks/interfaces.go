package tasks

// TaskSchedulerInterface is what the HTTP layer and main need from the
// scheduler: lifecycle control and a way to queue on-demand work.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
